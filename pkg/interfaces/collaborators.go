package interfaces

import "context"

// ClassDirectory is a read-only lookup of class enrollment, owned by the
// surrounding school-management platform.
type ClassDirectory interface {
	// StudentsOf returns the student IDs enrolled in a class.
	StudentsOf(ctx context.Context, classID string) ([]string, error)
}

// Notifier delivers out-of-band notifications to users. Delivery is owned by
// an external collaborator; failures here are logged, never fatal.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}
