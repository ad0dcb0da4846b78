package cloud

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

// TimestampLayout is the UTC timestamp format the service expects in query values.
const TimestampLayout = "20060102150405"

var resources = map[string]string{
	models.ObjectPlaylist:      "playlists",
	models.ObjectConfiguration: "configurations",
	models.ObjectDevice:        "devices",
	models.ObjectLink:          "links",
	models.ObjectListen:        "listens",
}

// resourcePath returns "/{resource}.json" for id 0 and "/{resource}/{id}.json" otherwise.
func resourcePath(objectType string, id uint) (string, error) {
	res, ok := resources[objectType]
	if !ok {
		return "", fmt.Errorf("%w: %q", shared.ErrUnknownObject, objectType)
	}
	if id == 0 {
		return "/" + res + ".json", nil
	}
	return fmt.Sprintf("/%s/%d.json", res, id), nil
}

// formatValue renders a param value the way the service parses query strings.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(x)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.UTC().Format(TimestampLayout)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// scopedQuery encodes params as objectType[key]=value.
func scopedQuery(objectType string, params [][2]any) url.Values {
	q := url.Values{}
	for _, kv := range params {
		q.Set(fmt.Sprintf("%s[%s]", objectType, kv[0]), formatValue(kv[1]))
	}
	return q
}

type songsBody struct {
	Songs models.SongsDelta `json:"songs"`
}

// encodeSongs builds the JSON body carrying a playlist's song delta.
func encodeSongs(d *models.SongsDelta) ([]byte, error) {
	body := songsBody{Songs: models.SongsDelta{Added: []models.Track{}, Removed: []models.Track{}}}
	if d != nil {
		body.Songs.Added = append(body.Songs.Added, d.Added...)
		body.Songs.Removed = append(body.Songs.Removed, d.Removed...)
	}
	return json.Marshal(body)
}

// encodeOperation maps an operation to its request.
//
// Scalar params go into the query string; a songs delta goes into the JSON body.
func encodeOperation(op *models.SyncOperation) (*services.Request, error) {
	var method string
	id := op.ObjectID
	switch op.Command {
	case models.CommandCreate:
		method, id = http.MethodPost, 0
	case models.CommandUpdate:
		method = http.MethodPut
	case models.CommandDelete:
		method = http.MethodDelete
	default:
		return nil, fmt.Errorf("%w: %v", shared.ErrUnknownCommand, op.Command)
	}
	if op.Command != models.CommandCreate && id == 0 {
		return nil, fmt.Errorf("%w: %s without a cloud id", shared.ErrInvalidArgument, op)
	}

	path, err := resourcePath(op.ObjectType, id)
	if err != nil {
		return nil, err
	}

	req := &services.Request{Method: method, Path: path}
	if op.Command == models.CommandDelete || op.Params == nil {
		return req, nil
	}

	if scalars := op.Params.Scalars(); len(scalars) > 0 {
		req.Query = scopedQuery(op.ObjectType, scalars)
	}
	if songs := op.Songs(); !songs.Empty() {
		if req.Body, err = encodeSongs(songs); err != nil {
			return nil, fmt.Errorf("failed to encode songs: %w", err)
		}
	}
	return req, nil
}

// expectedStatus lists the success codes of a command.
func expectedStatus(cmd models.Command) []int {
	switch cmd {
	case models.CommandCreate:
		return []int{http.StatusCreated}
	case models.CommandUpdate:
		return []int{http.StatusOK, http.StatusNoContent}
	default:
		return []int{http.StatusNoContent}
	}
}
