package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/persistence/memory"
)

type userAgent struct {
	private *ecdh.PrivateKey
	auth    []byte
}

func newUserAgent(t *testing.T) userAgent {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return userAgent{private: priv, auth: auth}
}

func (ua userAgent) subscription(endpoint string) domain.PushSubscription {
	return domain.PushSubscription{
		Endpoint: endpoint,
		Keys: domain.PushKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(ua.private.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(ua.auth),
		},
	}
}

func (ua userAgent) decrypt(t *testing.T, body []byte) []byte {
	t.Helper()
	require.Greater(t, len(body), 21)
	salt := body[:16]
	require.Equal(t, uint32(recordSize), binary.BigEndian.Uint32(body[16:20]))
	idLen := int(body[20])
	keyID := body[21 : 21+idLen]
	ciphertext := body[21+idLen:]

	asPublic, err := ecdh.P256().NewPublicKey(keyID)
	require.NoError(t, err)
	shared, err := ua.private.ECDH(asPublic)
	require.NoError(t, err)

	cek, nonce, err := deriveContentKeys(shared, ua.auth, salt, ua.private.PublicKey().Bytes(), keyID)
	require.NoError(t, err)
	gcm, err := newGCM(cek)
	require.NoError(t, err)
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	require.NoError(t, err)
	require.Equal(t, byte(0x02), plain[len(plain)-1])
	return plain[:len(plain)-1]
}

func TestEncryptRoundTrip(t *testing.T) {
	ua := newUserAgent(t)
	sub := ua.subscription("https://push.example/sub")

	payload := []byte(`{"title":"Workout registered!"}`)
	body, err := encrypt(payload, sub.Keys.P256dh, sub.Keys.Auth, rand.Reader)
	require.NoError(t, err)
	require.Equal(t, payload, ua.decrypt(t, body))
}

func TestEncryptRejectsOversizedPayload(t *testing.T) {
	ua := newUserAgent(t)
	sub := ua.subscription("https://push.example/sub")
	_, err := encrypt(make([]byte, recordSize), sub.Keys.P256dh, sub.Keys.Auth, rand.Reader)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestVAPIDKeysRoundTrip(t *testing.T) {
	keys, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	pub, err := keys.PublicKey()
	require.NoError(t, err)
	priv, err := keys.PrivateKey()
	require.NoError(t, err)

	parsed, err := ParseVAPIDKeys(pub, priv)
	require.NoError(t, err)
	parsedPub, err := parsed.PublicKey()
	require.NoError(t, err)
	require.Equal(t, pub, parsedPub)

	other, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	otherPub, err := other.PublicKey()
	require.NoError(t, err)
	_, err = ParseVAPIDKeys(otherPub, priv)
	require.Error(t, err)
}

type capturedPush struct {
	header http.Header
	body   []byte
}

func TestSenderPostsEncryptedPayloadWithVAPID(t *testing.T) {
	var (
		mu       sync.Mutex
		captured []capturedPush
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		captured = append(captured, capturedPush{header: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	keys, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	sender := NewSender(keys, "mailto:ops@fittrack.example", WithHTTPClient(srv.Client()))

	ua := newUserAgent(t)
	err = sender.SendNotification(context.Background(), ua.subscription(srv.URL+"/send/abc"), Notification{
		Title: "Workout registered!",
		Body:  "You completed: Intervals",
	})
	require.NoError(t, err)

	require.Len(t, captured, 1)
	push := captured[0]
	require.Equal(t, "aes128gcm", push.header.Get("Content-Encoding"))
	require.Equal(t, "86400", push.header.Get("TTL"))

	var n Notification
	require.NoError(t, json.Unmarshal(ua.decrypt(t, push.body), &n))
	require.Equal(t, "You completed: Intervals", n.Body)

	authz := push.header.Get("Authorization")
	require.True(t, strings.HasPrefix(authz, "vapid t="))
	parts := strings.SplitN(strings.TrimPrefix(authz, "vapid t="), ", k=", 2)
	require.Len(t, parts, 2)
	pub, err := keys.PublicKey()
	require.NoError(t, err)
	require.Equal(t, pub, parts[1])

	token, err := jwt.Parse(parts[0], func(*jwt.Token) (interface{}, error) {
		return &keys.private.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	require.Equal(t, srv.URL, claims["aud"])
	require.Equal(t, "mailto:ops@fittrack.example", claims["sub"])
}

func TestBroadcastPrunesGoneSubscriptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()

	keys, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	sender := NewSender(keys, "mailto:ops@fittrack.example", WithHTTPClient(srv.Client()))

	ctx := context.Background()
	repo := memory.NewRepository()
	ua := newUserAgent(t)
	for _, path := range []string{"/ok", "/gone", "/broken"} {
		require.NoError(t, repo.SaveSubscription(ctx, ua.subscription(srv.URL+path)))
	}

	sent, err := NewBroadcaster(sender, repo, nil).Broadcast(ctx, Notification{Title: "hi"})
	require.Equal(t, 1, sent)
	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, http.StatusInternalServerError, derr.Status)

	subs, err := repo.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	for _, sub := range subs {
		require.NotEqual(t, srv.URL+"/gone", sub.Endpoint)
	}
}
