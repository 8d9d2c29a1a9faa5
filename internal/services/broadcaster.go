package services

// Broadcaster pushes a domain event to connected realtime clients. The
// realtime hub implements it; services treat it as optional.
type Broadcaster interface {
	Broadcast(event string, payload any)
}
