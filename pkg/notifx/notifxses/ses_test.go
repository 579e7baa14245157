package notifxses

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/Abraxas-365/gatekeeper/pkg/notifx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSendEmailBuildsInput(t *testing.T) {
	fake := &fakeSES{}
	p := NewSESProvider(fake, "noreply@gatekeeper.dev")

	err := p.SendEmail(context.Background(), notifx.EmailMessage{
		To:       []string{"ada@example.com"},
		Subject:  "Verify your email",
		TextBody: "click",
	}, notifx.WithTags(map[string]string{"type": "contact_channel_verification"}), notifx.WithConfigurationSet("auth"))
	require.NoError(t, err)

	require.NotNil(t, fake.input)
	assert.Equal(t, "noreply@gatekeeper.dev", aws.ToString(fake.input.Source))
	assert.Equal(t, []string{"ada@example.com"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, "click", aws.ToString(fake.input.Message.Body.Text.Data))
	assert.Nil(t, fake.input.Message.Body.Html)
	assert.Equal(t, "auth", aws.ToString(fake.input.ConfigurationSetName))
	require.Len(t, fake.input.Tags, 1)
	assert.Equal(t, "type", aws.ToString(fake.input.Tags[0].Name))
}

func TestSendEmailWrapsFailure(t *testing.T) {
	p := NewSESProvider(&fakeSES{err: errors.New("throttled")}, "noreply@gatekeeper.dev")

	err := p.SendEmail(context.Background(), notifx.EmailMessage{To: []string{"a@b.c"}, Subject: "s"})
	require.Error(t, err)
	assert.True(t, errx.HasCode(err, ErrSendFailed))
}
