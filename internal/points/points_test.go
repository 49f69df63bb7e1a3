package points

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackops/internal/apiclient"
)

type fakeRemote struct {
	reqs        []apiclient.AwardRequest
	invalidated []int
	err         error
}

func (f *fakeRemote) AwardPoints(_ context.Context, req apiclient.AwardRequest) error {
	if f.err != nil {
		return f.err
	}
	f.reqs = append(f.reqs, req)
	return nil
}

func (f *fakeRemote) Invalidate(_ context.Context, id int) {
	f.invalidated = append(f.invalidated, id)
}

func TestAward_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  apiclient.AwardRequest
		want error
	}{
		{"no user", apiclient.AwardRequest{Amount: 5, Reason: "demo"}, ErrInvalidUser},
		{"zero amount", apiclient.AwardRequest{UserID: 1, Reason: "demo"}, ErrInvalidAmount},
		{"blank reason", apiclient.AwardRequest{UserID: 1, Amount: 5, Reason: "   "}, ErrNoReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeRemote{}
			err := NewService(remote, remote, nil).Award(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsInvalid(err))
			assert.Empty(t, remote.reqs)
		})
	}
}

func TestAward(t *testing.T) {
	remote := &fakeRemote{}
	svc := NewService(remote, remote, nil)

	err := svc.Award(context.Background(), apiclient.AwardRequest{UserID: 42, Amount: -10, Reason: " late badge "})
	require.NoError(t, err)
	require.Len(t, remote.reqs, 1)
	assert.Equal(t, "late badge", remote.reqs[0].Reason)
	assert.Equal(t, []int{42}, remote.invalidated)

	remote.err = &apiclient.Error{Status: 403, Message: "not an organizer"}
	err = svc.Award(context.Background(), apiclient.AwardRequest{UserID: 42, Amount: 5, Reason: "demo"})
	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, IsInvalid(err))
	assert.Equal(t, []int{42}, remote.invalidated)
}
