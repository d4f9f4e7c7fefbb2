package authorization

import "context"

// Service decides whether a verified user holds a role. The role is always
// read from the user's profile row, never from the request.
type Service interface {
	Authorize(ctx context.Context, userID string, role string) error
}
