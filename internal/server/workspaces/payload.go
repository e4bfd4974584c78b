package workspaces

import (
	"encoding/base64"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/moltmd/moltd/internal/common"
)

// Entry kinds on the wire. "md" matches the original client protocol.
const (
	KindDocument  = "md"
	KindWorkspace = "workspace"
)

// Payload is the decrypted JSON structure of a workspace. Entries hold
// references (target id plus an embedded capability key), never ownership:
// deleting a workspace does not cascade to its targets.
type Payload struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

// Entry references one document or sub-workspace. Key is the URL-safe
// base64 capability the workspace author chose to embed; it lives only
// inside the encrypted payload.
type Entry struct {
	Kind     string `json:"type"`
	TargetID string `json:"id"`
	Key      string `json:"key"`
}

// Validate checks the structure before it is encrypted: a name, and for
// each entry a recognized kind, a well-formed target id and a decodable
// embedded key. Failures surface as common.ErrorInvalidArgument.
func (p Payload) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&p.Entries),
	)
	if err != nil {
		return common.ErrorInvalidArgument
	}
	return nil
}

func (e Entry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Kind, validation.Required, validation.In(KindDocument, KindWorkspace)),
		validation.Field(&e.TargetID, validation.Required, is.UUIDv4),
		validation.Field(&e.Key, validation.Required, validation.By(decodableKey)),
	)
}

func decodableKey(value any) error {
	s, _ := value.(string)
	if _, err := base64.URLEncoding.DecodeString(s); err != nil {
		return err
	}
	return nil
}

// DecodeKey returns the raw bytes of an entry's embedded capability key.
func (e Entry) DecodeKey() ([]byte, error) {
	key, err := base64.URLEncoding.DecodeString(e.Key)
	if err != nil {
		return nil, common.ErrorInvalidArgument
	}
	return key, nil
}
