package domain

import "time"

// Book is a catalog entry with a fixed number of physical copies.
// AvailableCopies only moves through Take and Release.
type Book struct {
	ID              string
	TenantID        string
	Title           string
	TotalCopies     int
	AvailableCopies int
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Availability is the read model returned to catalog clients.
type Availability struct {
	BookID    string
	Total     int
	Available int
	Version   int
}

// NewBook creates a book with every copy on the shelf.
func NewBook(id, tenantID, title string, totalCopies int, now time.Time) Book {
	return Book{
		ID:              id,
		TenantID:        tenantID,
		Title:           title,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Availability returns the book's current copy counts.
func (b Book) Availability() Availability {
	return Availability{
		BookID:    b.ID,
		Total:     b.TotalCopies,
		Available: b.AvailableCopies,
		Version:   b.Version,
	}
}

// CopiesOut is the number of copies held by reservations or loans.
func (b Book) CopiesOut() int {
	return b.TotalCopies - b.AvailableCopies
}

// Take removes one copy from the shelf.
func (b *Book) Take(now time.Time) error {
	if b.AvailableCopies <= 0 {
		return ErrBookUnavailable
	}
	b.AvailableCopies--
	b.touch(now)
	return nil
}

// Release puts one copy back on the shelf.
func (b *Book) Release(now time.Time) error {
	if b.AvailableCopies >= b.TotalCopies {
		return &OverCapacityError{BookID: b.ID, Total: b.TotalCopies, Available: b.AvailableCopies}
	}
	b.AvailableCopies++
	b.touch(now)
	return nil
}

// SetTotalCopies changes the owned copy count. Copies currently out stay out.
func (b *Book) SetTotalCopies(total int, now time.Time) error {
	if total < b.CopiesOut() {
		return ErrCopiesInUse
	}
	b.AvailableCopies = total - b.CopiesOut()
	b.TotalCopies = total
	b.touch(now)
	return nil
}

func (b *Book) touch(now time.Time) {
	b.Version++
	b.UpdatedAt = now
}
