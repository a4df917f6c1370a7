// Package device derives and persists the station's identity: a stable
// device identifier, the operator label, and the monotonic sequence counter
// used to build globally unique event identifiers.
package device

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/digitide-user/mst26-cp1/internal/store"
)

// Identity is the persisted identity state for this device. DeviceID is
// minted once and then immutable for the device's lifetime; Operator is a
// free-text station label that sticks once overridden.
type Identity struct {
	DeviceID string
	Operator string

	st *store.Store
}

// LoadOrCreate resolves the device identity from the store.
//
// The device ID is generated (UUIDv4) and persisted on first use. The
// operator label resolves as: explicit override (persisted for next time) >
// previously persisted value > fallback.
func LoadOrCreate(ctx context.Context, st *store.Store, operatorOverride, operatorFallback string) (*Identity, error) {
	deviceID, err := st.GetSetting(ctx, store.KeyDeviceID)
	if err != nil {
		return nil, fmt.Errorf("load device id: %w", err)
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
		if err := st.SetSetting(ctx, store.KeyDeviceID, deviceID); err != nil {
			return nil, fmt.Errorf("persist device id: %w", err)
		}
	}

	operator := operatorOverride
	if operator != "" {
		if err := st.SetSetting(ctx, store.KeyOperator, operator); err != nil {
			return nil, fmt.Errorf("persist operator: %w", err)
		}
	} else {
		operator, err = st.GetSetting(ctx, store.KeyOperator)
		if err != nil {
			return nil, fmt.Errorf("load operator: %w", err)
		}
		if operator == "" {
			operator = operatorFallback
		}
	}

	return &Identity{DeviceID: deviceID, Operator: operator, st: st}, nil
}

// NextSeq returns the next value of the persisted sequence counter.
// Strictly increasing; each value is used for exactly one event.
func (id *Identity) NextSeq(ctx context.Context) (int64, error) {
	return id.st.NextSeq(ctx)
}
