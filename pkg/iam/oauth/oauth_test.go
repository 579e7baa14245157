package oauth

import (
	"testing"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/errx"
	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func TestVerifyPKCE(t *testing.T) {
	verifier := oauth2.GenerateVerifier()

	s256 := &AuthorizationCode{CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier), CodeChallengeMethod: ChallengeS256}
	assert.True(t, s256.VerifyPKCE(verifier))
	assert.False(t, s256.VerifyPKCE(verifier+"x"))
	assert.False(t, s256.VerifyPKCE(""))

	plain := &AuthorizationCode{CodeChallenge: verifier, CodeChallengeMethod: ChallengePlain}
	assert.True(t, plain.VerifyPKCE(verifier))
	assert.False(t, plain.VerifyPKCE(oauth2.GenerateVerifier()))

	unknown := &AuthorizationCode{CodeChallenge: verifier, CodeChallengeMethod: "S512"}
	assert.False(t, unknown.VerifyPKCE(verifier))
}

func TestCheckScope(t *testing.T) {
	assert.NoError(t, CheckScope(""))
	assert.NoError(t, CheckScope("legacy"))
	assert.NoError(t, CheckScope(" legacy  legacy "))
	assert.True(t, errx.HasCode(CheckScope("legacy openid"), CodeInvalidScope))
}

func TestStripFragment(t *testing.T) {
	assert.Equal(t, "https://app.example.com/cb?x=1", StripFragment("https://app.example.com/cb?x=1#frag"))
	assert.Equal(t, "https://app.example.com/cb", StripFragment("https://app.example.com/cb"))
	assert.Equal(t, "%zz", StripFragment("%zz#frag"))
}

func TestOuterInfoValidate(t *testing.T) {
	valid := func() *OuterInfo {
		return &OuterInfo{
			TenantID:          "proj-1",
			ProviderID:        "google",
			RedirectURI:       "https://app.example.com/cb",
			InnerCodeVerifier: "v",
			CodeChallenge:     "c",
			Type:              FlowAuthenticate,
			ExpiresAt:         time.Now().Add(time.Minute),
		}
	}
	assert.NoError(t, valid().Validate())

	link := valid()
	link.Type = FlowLink
	assert.True(t, errx.IsAssertion(link.Validate()))
	link.ProjectUserID = "u-1"
	assert.NoError(t, link.Validate())

	noVerifier := valid()
	noVerifier.InnerCodeVerifier = ""
	assert.True(t, errx.IsAssertion(noVerifier.Validate()))
}

func TestOuterInfoExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := &OuterInfo{ExpiresAt: now.Add(time.Second)}
	assert.False(t, o.IsExpired(now))
	assert.True(t, o.IsExpired(now.Add(time.Second)))
}
