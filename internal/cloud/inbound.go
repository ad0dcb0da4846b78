package cloud

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/desertthunder/playsync/internal/tasks"
)

type playlistDelta struct {
	Name  *string            `json:"name"`
	Owner *uint              `json:"owner"`
	Songs *models.SongsDelta `json:"songs"`
}

type deviceDelta struct {
	Name *string `json:"name"`
}

func decodePayload(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrMalformedPayload, err)
	}
	return nil
}

// UpdateObject applies a server-pushed update of one object.
//
// Malformed payloads return [shared.ErrMalformedPayload] and nothing is applied. Unknown object types return
// [shared.ErrUnknownObject].
func (s *Synchronizer) UpdateObject(objectType string, id uint, payload []byte) error {
	log := s.logger.With("op", "update", "object", objectType, "id", id)

	var err error
	switch objectType {
	case models.ObjectPlaylist:
		err = s.updatePlaylist(id, payload)
	case models.ObjectConfiguration:
		err = s.updateConfiguration(id, payload)
	case models.ObjectLink:
		err = s.upsertLink(id, payload)
	case models.ObjectDevice:
		err = s.updateDevice(id, payload)
	default:
		err = fmt.Errorf("%w: %q", shared.ErrUnknownObject, objectType)
	}

	if err != nil {
		log.Warn("remote update not applied", "error", err)
		return err
	}
	s.notify(tasks.NewUpdate(tasks.KindRemote, "updated %s %d", objectType, id))
	return nil
}

// CreateObject applies a server-pushed creation.
func (s *Synchronizer) CreateObject(objectType string, payload []byte) error {
	log := s.logger.With("op", "create", "object", objectType)

	var err error
	switch objectType {
	case models.ObjectPlaylist:
		var cp CloudPlaylist
		if err = decodePayload(payload, &cp); err == nil {
			_, err = s.merger.Merge(cp)
		}
	case models.ObjectLink:
		err = s.upsertLink(0, payload)
	case models.ObjectConfiguration, models.ObjectDevice:
		log.Debug("ignored")
		return nil
	default:
		err = fmt.Errorf("%w: %q", shared.ErrUnknownObject, objectType)
	}

	if err != nil {
		log.Warn("remote create not applied", "error", err)
		return err
	}
	s.notify(tasks.NewUpdate(tasks.KindRemote, "created %s", objectType))
	return nil
}

// DeleteObject applies a server-pushed deletion. Deleting this device delinks the account.
func (s *Synchronizer) DeleteObject(objectType string, id uint) error {
	log := s.logger.With("op", "delete", "object", objectType, "id", id)

	var err error
	switch objectType {
	case models.ObjectPlaylist:
		p, ok := s.lib.ByCloudID(id)
		if !ok {
			err = fmt.Errorf("%w: cloud id %d", shared.ErrPlaylistNotFound, id)
			break
		}
		err = s.lib.Delete(p.Key, models.OriginRemote)
	case models.ObjectLink:
		if !s.identity.RemoveLink(id) {
			err = fmt.Errorf("%w: %d", shared.ErrLinkNotFound, id)
		}
	case models.ObjectConfiguration:
		if id == s.identity.ConfigurationID() {
			s.identity.SetConfigurationID(0)
		}
	case models.ObjectDevice:
		if id == s.identity.DeviceID() {
			s.delink()
		}
	default:
		err = fmt.Errorf("%w: %q", shared.ErrUnknownObject, objectType)
	}

	if err != nil {
		log.Warn("remote delete not applied", "error", err)
		return err
	}
	s.notify(tasks.NewUpdate(tasks.KindRemote, "deleted %s %d", objectType, id))
	return nil
}

// ExecuteCommand runs a remote playback command when it targets the bound configuration.
func (s *Synchronizer) ExecuteCommand(name string, configID uint) error {
	bound := s.identity.ConfigurationID()
	if bound == 0 || configID != bound {
		s.logger.Debug("command for another configuration ignored", "command", name, "configuration", configID)
		return nil
	}

	var err error
	switch strings.ToLower(name) {
	case "next":
		err = s.player.Next()
	case "prev", "previous":
		err = s.player.Previous()
	case "play":
		err = s.player.Play()
	case "pause":
		err = s.player.Pause()
	default:
		err = fmt.Errorf("%w: %q", shared.ErrUnknownCommand, name)
	}

	if err != nil {
		s.logger.Warn("command failed", "command", name, "error", err)
		return err
	}
	s.notify(tasks.NewUpdate(tasks.KindCommand, "%s", name))
	return nil
}

func (s *Synchronizer) updatePlaylist(id uint, payload []byte) error {
	var delta playlistDelta
	if err := decodePayload(payload, &delta); err != nil {
		return err
	}

	p, ok := s.lib.ByCloudID(id)
	if !ok {
		return fmt.Errorf("%w: cloud id %d", shared.ErrPlaylistNotFound, id)
	}

	if delta.Owner != nil && *delta.Owner != p.Owner {
		if err := s.lib.SetCloudID(p.Key, id, *delta.Owner, models.OriginRemote); err != nil {
			return err
		}
	}
	if delta.Name != nil && *delta.Name != p.Name {
		if err := s.lib.Rename(p.Key, *delta.Name, models.OriginRemote); err != nil {
			return err
		}
	}
	if delta.Songs != nil {
		if len(delta.Songs.Added) > 0 {
			if _, err := s.lib.AddTracks(p.Key, delta.Songs.Added, models.OriginRemote); err != nil {
				return err
			}
		}
		if len(delta.Songs.Removed) > 0 {
			if _, err := s.lib.RemoveTracks(p.Key, delta.Songs.Removed, models.OriginRemote); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Synchronizer) updateConfiguration(id uint, payload []byte) error {
	var values map[string]any
	if err := decodePayload(payload, &values); err != nil {
		return err
	}

	if id != s.identity.ConfigurationID() || !s.identity.Flags().SynchronizeConfig || s.settings == nil {
		s.logger.Debug("configuration update ignored", "id", id)
		return nil
	}
	delete(values, "id")
	return s.settings.Apply(values, models.OriginRemote)
}

// upsertLink decodes payload on top of the known link so partial updates keep the other fields.
func (s *Synchronizer) upsertLink(id uint, payload []byte) error {
	var link models.Link
	if id != 0 {
		link, _ = s.identity.Link(id)
	}
	if err := decodePayload(payload, &link); err != nil {
		return err
	}
	if id != 0 {
		link.ID = id
	}
	if link.ID == 0 {
		return fmt.Errorf("%w: link without id", shared.ErrMalformedPayload)
	}
	s.identity.UpsertLink(link)
	return nil
}

func (s *Synchronizer) updateDevice(id uint, payload []byte) error {
	var delta deviceDelta
	if err := decodePayload(payload, &delta); err != nil {
		return err
	}
	if id != s.identity.DeviceID() || delta.Name == nil {
		return nil
	}

	s.mu.Lock()
	s.device = *delta.Name
	s.mu.Unlock()
	if s.settings != nil {
		return s.settings.Apply(map[string]any{"device_name": *delta.Name}, models.OriginRemote)
	}
	return nil
}

// delink stops outbound synchronization after the server removed this device.
func (s *Synchronizer) delink() {
	if s.delinked.Swap(true) {
		return
	}
	s.logger.Warn("device removed on the server, account delinked")
	s.notify(tasks.NewUpdate(tasks.KindLifecycle, "account delinked"))
	if s.onDelink != nil {
		s.onDelink(s.identity.UserID())
	}
}
