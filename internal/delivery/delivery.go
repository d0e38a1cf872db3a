// Package delivery defines the contract every transport entrypoint satisfies.
package delivery

import "context"

// Delivery is implemented by each serving surface (HTTP today).
type Delivery interface {
	Serve(ctx context.Context) error
}
