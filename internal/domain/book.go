package domain

import "time"

// Book is a catalog entry. Copies are fungible and only counted.
type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	Description     string    `json:"description"`
	CoverImageURL   string    `json:"cover_image_url,omitempty"`
	CoverBlurHash   string    `json:"cover_blur_hash,omitempty"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CopiesOnLoan returns how many copies are currently issued.
func (b *Book) CopiesOnLoan() int {
	return b.TotalCopies - b.AvailableCopies
}

// IsAvailable reports whether at least one copy can be issued.
func (b *Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}

// CopiesConsistent reports whether 0 <= available <= total holds.
func (b *Book) CopiesConsistent() bool {
	return b.AvailableCopies >= 0 && b.AvailableCopies <= b.TotalCopies
}

// Resize changes the total copy count while keeping copies on loan intact.
// It returns false when the new total is below the number of copies on loan.
func (b *Book) Resize(total int) bool {
	onLoan := b.CopiesOnLoan()
	if total < onLoan || total < 0 {
		return false
	}
	b.TotalCopies = total
	b.AvailableCopies = total - onLoan
	return true
}
