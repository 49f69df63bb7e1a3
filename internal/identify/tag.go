package identify

import (
	"context"
	"errors"
	"fmt"

	"hackops/internal/apiclient"
	"hackops/internal/nfc"
	"hackops/internal/tagurl"
)

// TagReader reads the URL off the next presented tag.
type TagReader interface {
	IsSupported(ctx context.Context) bool
	Read(ctx context.Context) (string, error)
}

// UserResolver loads a user by id.
type UserResolver interface {
	User(ctx context.Context, id int) (*apiclient.UserDetail, error)
}

// Tag identifies a participant by the identity tag they carry.
type Tag struct {
	reader TagReader
	users  UserResolver
}

// NewTag returns the tag-scan method.
func NewTag(reader TagReader, users UserResolver) *Tag {
	return &Tag{reader: reader, users: users}
}

func (t *Tag) ID() string { return MethodTag }

func (t *Tag) Name() string { return "Scan NFC Card" }

// Identify reads one tag, extracts the user id and resolves it remotely.
func (t *Tag) Identify(ctx context.Context, in Input) (apiclient.User, error) {
	supported := in.Supported != nil && *in.Supported
	if in.Supported == nil {
		supported = t.reader.IsSupported(ctx)
	}
	if !supported {
		return apiclient.User{}, nfc.ErrUnsupported
	}
	url, err := t.reader.Read(ctx)
	if err != nil {
		if errors.Is(err, nfc.ErrNoURI) {
			return apiclient.User{}, fmt.Errorf("%w: %v", ErrEmptyTag, err)
		}
		return apiclient.User{}, err
	}
	id, ok := tagurl.ExtractID(url)
	if !ok {
		return apiclient.User{}, fmt.Errorf("%w: %q", ErrUnrecognizedTag, url)
	}
	detail, err := t.users.User(ctx, id)
	if err != nil {
		return apiclient.User{}, fmt.Errorf("resolve user %d: %w", id, err)
	}
	return detail.User, nil
}
