/*
 * Copyright (c) 2019 OysterPack, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cart

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"io"
	"net/http"
	"time"
)

// CookieName is the cart cookie name
const CookieName = "ecoshop_cart"

const (
	keySize   = 32
	nonceSize = 24
	cookieTTL = 30 * 24 * time.Hour
)

// Codec seals the cart into a cookie value using NaCl secretbox. A random nonce prefixes every sealed value.
//
// Only product ids, quantities, and timestamps are sealed, which keeps a full cart well below the browser cookie size
// limit. The catalog fields are restored via Cart.Refresh.
type Codec struct {
	key [keySize]byte
}

// NewCodec creates a codec for the 32 byte key. If the key is empty, a random key is generated.
func NewCodec(key []byte) (*Codec, error) {
	codec := &Codec{}
	switch len(key) {
	case 0:
		if _, err := io.ReadFull(rand.Reader, codec.key[:]); err != nil {
			return nil, errors.Wrap(err, "failed to generate cart key")
		}
	case keySize:
		copy(codec.key[:], key)
	default:
		return nil, errors.Errorf("cart key must be %d bytes: %d", keySize, len(key))
	}
	return codec, nil
}

type sealedLine struct {
	ProductID int64 `json:"p"`
	Quantity  int   `json:"q"`
	AddedAt   int64 `json:"a"`
}

// Seal encodes the cart
func (c *Codec) Seal(cart Cart) (string, error) {
	lines := make([]sealedLine, len(cart.Items))
	for i, item := range cart.Items {
		lines[i] = sealedLine{item.ProductID, item.Quantity, item.AddedAt.Unix()}
	}
	plaintext, err := json.Marshal(lines)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal cart")
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", errors.Wrap(err, "failed to generate nonce")
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &c.key)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decodes the cart. Values that were tampered with or cannot be decoded yield an empty cart.
func (c *Codec) Open(value string) Cart {
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(sealed) < nonceSize+secretbox.Overhead {
		return Cart{}
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &c.key)
	if !ok {
		return Cart{}
	}
	var lines []sealedLine
	if err := json.Unmarshal(plaintext, &lines); err != nil {
		return Cart{}
	}

	var cart Cart
	for _, line := range lines {
		if line.ProductID <= 0 || line.Quantity <= 0 || len(cart.Items) >= MaxItems {
			continue
		}
		cart.Items = append(cart.Items, Item{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			AddedAt:   time.Unix(line.AddedAt, 0).UTC(),
		})
	}
	return cart
}

// Load reads the cart from the request cookie. A missing or invalid cookie yields an empty cart.
func (c *Codec) Load(r *http.Request) Cart {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Cart{}
	}
	return c.Open(cookie.Value)
}

// Save writes the cart cookie. An empty cart expires the cookie.
func (c *Codec) Save(w http.ResponseWriter, cart Cart) error {
	if cart.IsEmpty() {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		return nil
	}
	value, err := c.Seal(cart)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(cookieTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
