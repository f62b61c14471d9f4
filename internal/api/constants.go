package api

// CacheOneDay is the Cache-Control value for uploaded covers.
const CacheOneDay = "public, max-age=86400"
