package cloud

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

// Account is the signed-in user as reported by GET /me.json.
type Account struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type deviceEntry struct {
	ID uint `json:"id"`
}

// RegisterDevice completes an account link once the client is authorized.
//
// It looks up the signed-in user, registers this device (a user that is already linked keeps its device) and
// stores the identity with every sync flag enabled.
func RegisterDevice(ctx context.Context, client services.SignedRequestClient, accounts *Accounts, deviceName string) (*Identity, error) {
	var me Account
	if err := services.GetJSON(ctx, client, "/me.json", &me); err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}
	if me.ID == 0 {
		return nil, fmt.Errorf("%w: missing user id", shared.ErrMalformedPayload)
	}

	if existing, ok := accounts.Get(me.ID); ok && existing.DeviceID() != 0 {
		data := existing.Snapshot()
		data.Name = me.Name
		return accounts.Link(ctx, data)
	}

	op := models.NewSyncOperation(models.CommandCreate, models.ObjectDevice, 0)
	op.Params.Set("name", deviceName)
	req, err := encodeOperation(op)
	if err != nil {
		return nil, err
	}

	resp, err := services.Call(ctx, client, req, expectedStatus(op.Command)...)
	if err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}
	var dev deviceEntry
	if err := resp.Decode(&dev); err != nil {
		return nil, err
	}
	if dev.ID == 0 {
		return nil, fmt.Errorf("%w: missing device id", shared.ErrMalformedPayload)
	}

	return accounts.Link(ctx, models.CloudIdentity{
		UserID:   me.ID,
		Name:     me.Name,
		DeviceID: dev.ID,
		Flags:    models.SyncFlags{Synchronize: true, SynchronizeConfig: true, SynchronizePlaylists: true},
	})
}

// UnregisterDevice deletes the device of id on the server and forgets the account locally.
//
// A device the server no longer knows still delinks. client may be nil to delink locally only.
func UnregisterDevice(ctx context.Context, client services.SignedRequestClient, accounts *Accounts, id *Identity) error {
	if client != nil && id.DeviceID() != 0 {
		op := models.NewSyncOperation(models.CommandDelete, models.ObjectDevice, id.DeviceID())
		req, err := encodeOperation(op)
		if err != nil {
			return err
		}
		resp, err := services.Call(ctx, client, req, expectedStatus(op.Command)...)
		if err != nil && (resp == nil || resp.StatusCode != http.StatusNotFound) {
			return fmt.Errorf("failed to delete device: %w", err)
		}
	}
	return accounts.Delink(ctx, id.UserID())
}
