package oauth2

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
	logger "github.com/wso2/open-oauth2-introspect-proxy/internal/logging"
	"github.com/wso2/open-oauth2-introspect-proxy/internal/metrics"
)

type jwksDocument struct {
	Keys []json.RawMessage `json:"keys"`
}

// rejectionBody is the payload attached to locally rejected tokens.
var rejectionBody = []byte(`{"active":false}`)

// JWKSResource validates JWT access tokens locally against a JWKS document
// and synthesizes introspection payloads from their claims, so the policy
// consumes local and remote resources identically.
type JWKSResource struct {
	name     string
	jwksURL  string
	issuer   string
	audience string
	client   *http.Client

	mu   sync.Mutex
	keys map[string]*rsa.PublicKey
}

// NewJWKSResource builds a resource from its configuration block.
func NewJWKSResource(cfg config.ResourceConfig, timeout time.Duration) *JWKSResource {
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &JWKSResource{
		name:     cfg.Name,
		jwksURL:  cfg.JWKSURL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		client:   &http.Client{Timeout: timeout},
	}
}

// Introspect implements Resource.
func (r *JWKSResource) Introspect(ctx context.Context, token string, handler Handler) {
	go func() {
		start := time.Now()
		resp := r.introspect(ctx, token)
		metrics.RecordIntrospection(r.name, outcome(resp), time.Since(start))
		handler(resp)
	}()
}

func (r *JWKSResource) introspect(ctx context.Context, token string) *Response {
	if err := r.fetchKeys(ctx, false); err != nil {
		return &Response{Err: fmt.Errorf("fetching JWKS: %w", err)}
	}

	claims, err := r.validate(ctx, token)
	if err != nil {
		var fetchErr *jwksFetchError
		if errors.As(err, &fetchErr) {
			return &Response{Err: fetchErr.err}
		}
		logger.Debug("Token rejected by resource %q: %v", r.name, err)
		return &Response{Success: false, Payload: rejectionBody, MediaType: "application/json"}
	}

	payload, err := json.Marshal(introspectionClaims(claims))
	if err != nil {
		return &Response{Err: err}
	}
	return &Response{Success: true, Payload: payload, MediaType: "application/json"}
}

// jwksFetchError marks a key refresh failure inside the parse path so it is
// reported as a transport failure, not a token rejection.
type jwksFetchError struct{ err error }

func (e *jwksFetchError) Error() string { return e.err.Error() }

// validate parses and verifies the token signature plus registered claims.
func (r *JWKSResource) validate(ctx context.Context, accessToken string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(accessToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}
		key, ok := r.key(kid)
		if !ok {
			// Unknown kid: the server may have rotated keys.
			if err := r.fetchKeys(ctx, true); err != nil {
				return nil, &jwksFetchError{err}
			}
			if key, ok = r.key(kid); !ok {
				return nil, fmt.Errorf("key not found for kid: %s", kid)
			}
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claim type")
	}

	if r.issuer != "" {
		if iss, _ := claims["iss"].(string); iss != r.issuer {
			return nil, fmt.Errorf("iss %q does not match %q", claims["iss"], r.issuer)
		}
	}
	if r.audience != "" {
		if err := checkAudience(claims, r.audience); err != nil {
			return nil, err
		}
	}

	return claims, nil
}

func checkAudience(claims jwt.MapClaims, audience string) error {
	audRaw, exists := claims["aud"]
	if !exists {
		return errors.New("aud claim missing")
	}
	switch v := audRaw.(type) {
	case string:
		if v != audience {
			return fmt.Errorf("aud %q does not match %q", v, audience)
		}
	case []interface{}:
		var found bool
		for _, a := range v {
			if s, ok := a.(string); ok && s == audience {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("audience %v does not include %q", v, audience)
		}
	default:
		return errors.New("aud claim has unexpected type")
	}
	return nil
}

// introspectionClaims maps verified JWT claims onto the introspection
// payload fields the policy understands.
func introspectionClaims(claims jwt.MapClaims) map[string]interface{} {
	payload := map[string]interface{}{"active": true}

	if v, ok := claims["client_id"].(string); ok && v != "" {
		payload["client_id"] = v
	} else if v, ok := claims["azp"].(string); ok && v != "" {
		payload["client_id"] = v
	}

	if v, ok := claims["scope"]; ok {
		payload["scope"] = v
	} else if v, ok := claims["scp"]; ok {
		payload["scope"] = v
	}

	for _, k := range []string{"sub", "iss", "exp", "username"} {
		if v, ok := claims[k]; ok {
			payload[k] = v
		}
	}
	return payload
}

// fetchKeys downloads the JWKS document and replaces the key set. With
// force false it only runs when no keys have been loaded yet.
func (r *JWKSResource) fetchKeys(ctx context.Context, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keys != nil && !force {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return err
	}
	res, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP code %d for GET %s", res.StatusCode, r.jwksURL)
	}

	var jwks jwksDocument
	if err := json.NewDecoder(res.Body).Decode(&jwks); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, keyData := range jwks.Keys {
		var parsed struct {
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
			Kty string `json:"kty"`
		}
		if err := json.Unmarshal(keyData, &parsed); err != nil {
			continue
		}
		if parsed.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(parsed.N, parsed.E)
		if err == nil {
			keys[parsed.Kid] = pubKey
		}
	}

	r.keys = keys
	logger.Info("Loaded %d public keys for resource %q", len(keys), r.name)
	return nil
}

func (r *JWKSResource) key(kid string) (*rsa.PublicKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[kid]
	return k, ok
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := jwt.DecodeSegment(nStr)
	if err != nil {
		return nil, err
	}
	eBytes, err := jwt.DecodeSegment(eStr)
	if err != nil {
		return nil, err
	}

	n := new(big.Int).SetBytes(nBytes)
	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}
