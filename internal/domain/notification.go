package domain

// Notification is the fixed payload handed to the notification sender.
type Notification struct {
	To         string
	Booking    Booking
	Hotel      Hotel
	CancelLink string
}
