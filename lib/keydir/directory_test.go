// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package keydir

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/keyward-dev/keyward/lib/agentproto"
)

// fakeBackend lists a fixed set of identities and records sign calls.
type fakeBackend struct {
	name       string
	identities []Identity
	listErr    error
	signErr    error
	signed     [][]byte
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) List(ctx context.Context) ([]Identity, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Identity(nil), f.identities...), nil
}

func (f *fakeBackend) Sign(ctx context.Context, identity Identity, data []byte, flags agentproto.SignatureFlags) ([]byte, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	f.signed = append(f.signed, data)
	return append([]byte(f.name+":"), data...), nil
}

func testSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating ed25519 key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(private)
	if err != nil {
		t.Fatalf("NewSignerFromKey: %v", err)
	}
	return signer
}

func TestDirectoryListOrder(t *testing.T) {
	first := &fakeBackend{name: "first", identities: []Identity{
		{KeyBlob: []byte{1}, Comment: "a"},
		{KeyBlob: []byte{2}, Comment: "b"},
	}}
	broken := &fakeBackend{name: "broken", listErr: ErrUnavailable}
	second := &fakeBackend{name: "second", identities: []Identity{
		{KeyBlob: []byte{3}, Comment: "c"},
	}}
	directory := New(nil, first, broken, second)

	identities := directory.List(context.Background())
	if len(identities) != 3 {
		t.Fatalf("List returned %d identities, want 3", len(identities))
	}
	wantComments := []string{"a", "b", "c"}
	wantOwners := []Backend{first, first, second}
	for index, identity := range identities {
		if identity.Comment != wantComments[index] {
			t.Errorf("identity %d comment = %q, want %q", index, identity.Comment, wantComments[index])
		}
		if identity.Backend != wantOwners[index] {
			t.Errorf("identity %d owned by %v, want %s", index, identity.Backend, wantOwners[index].Name())
		}
	}
}

func TestDirectoryListEmpty(t *testing.T) {
	if identities := New(nil).List(context.Background()); len(identities) != 0 {
		t.Errorf("empty directory listed %d identities", len(identities))
	}
}

func TestDirectoryReflectsAddedBackend(t *testing.T) {
	directory := New(nil)
	if _, err := directory.Find(context.Background(), []byte{9}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Find before Add error = %v, want ErrNotFound", err)
	}
	directory.Add(&fakeBackend{name: "late", identities: []Identity{{KeyBlob: []byte{9}}}})
	identity, err := directory.Find(context.Background(), []byte{9})
	if err != nil {
		t.Fatalf("Find after Add: %v", err)
	}
	if identity.Backend.Name() != "late" {
		t.Errorf("found identity owned by %q, want late", identity.Backend.Name())
	}
}

func TestDirectoryFindIsExact(t *testing.T) {
	directory := New(nil, &fakeBackend{name: "only", identities: []Identity{
		{KeyBlob: []byte{1, 2, 3}},
	}})
	for _, blob := range [][]byte{{1, 2}, {1, 2, 3, 4}, {1, 2, 4}, nil} {
		if _, err := directory.Find(context.Background(), blob); !errors.Is(err, ErrNotFound) {
			t.Errorf("Find(%x) error = %v, want ErrNotFound", blob, err)
		}
	}
}

func TestDirectorySignRoutesToOwner(t *testing.T) {
	first := &fakeBackend{name: "first", identities: []Identity{{KeyBlob: []byte{1}}}}
	second := &fakeBackend{name: "second", identities: []Identity{{KeyBlob: []byte{2}}}}
	directory := New(nil, first, second)

	identity, err := directory.Find(context.Background(), []byte{2})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	signature, err := directory.Sign(context.Background(), identity, []byte("payload"), 0)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if string(signature) != "second:payload" {
		t.Errorf("signature = %q, want second:payload", signature)
	}
	if len(first.signed) != 0 {
		t.Errorf("first backend signed %d times, want 0", len(first.signed))
	}
}

func TestDirectorySignWithoutBackend(t *testing.T) {
	_, err := New(nil).Sign(context.Background(), Identity{KeyBlob: []byte{1}}, nil, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Sign error = %v, want ErrNotFound", err)
	}
}

func TestIdentityFingerprint(t *testing.T) {
	signer := testSigner(t)
	identity := Identity{KeyBlob: signer.PublicKey().Marshal()}
	if got, want := identity.Fingerprint(), ssh.FingerprintSHA256(signer.PublicKey()); got != want {
		t.Errorf("Fingerprint = %q, want %q", got, want)
	}
	if got := (Identity{KeyBlob: []byte{1}}).Fingerprint(); got != "unparseable" {
		t.Errorf("Fingerprint of garbage = %q, want unparseable", got)
	}
}

func TestSignWithEd25519(t *testing.T) {
	signer := testSigner(t)
	data := []byte("session data")

	// Unknown flag bits are ignored for non-RSA keys.
	blob, err := SignWith(signer, data, 0xf0)
	if err != nil {
		t.Fatalf("SignWith: %v", err)
	}
	var signature ssh.Signature
	if err := ssh.Unmarshal(blob, &signature); err != nil {
		t.Fatalf("unmarshaling signature: %v", err)
	}
	if signature.Format != ssh.KeyAlgoED25519 {
		t.Errorf("signature format = %q, want %q", signature.Format, ssh.KeyAlgoED25519)
	}
	if err := signer.PublicKey().Verify(data, &signature); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestSignWithRSAFlags(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating rsa key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("NewSignerFromKey: %v", err)
	}

	tests := []struct {
		flags      agentproto.SignatureFlags
		wantFormat string
	}{
		{0, ssh.KeyAlgoRSA},
		{agentproto.FlagRSASHA256, ssh.KeyAlgoRSASHA256},
		{agentproto.FlagRSASHA512, ssh.KeyAlgoRSASHA512},
		{agentproto.FlagRSASHA256 | agentproto.FlagRSASHA512, ssh.KeyAlgoRSASHA256},
		{agentproto.FlagRSASHA512 | 0x100, ssh.KeyAlgoRSASHA512},
	}
	data := []byte("rsa data")
	for _, test := range tests {
		blob, err := SignWith(signer, data, test.flags)
		if err != nil {
			t.Fatalf("SignWith(flags %#x): %v", uint32(test.flags), err)
		}
		var signature ssh.Signature
		if err := ssh.Unmarshal(blob, &signature); err != nil {
			t.Fatalf("unmarshaling signature: %v", err)
		}
		if signature.Format != test.wantFormat {
			t.Errorf("flags %#x: format = %q, want %q", uint32(test.flags), signature.Format, test.wantFormat)
		}
		if err := signer.PublicKey().Verify(data, &signature); err != nil {
			t.Errorf("flags %#x: signature does not verify: %v", uint32(test.flags), err)
		}
	}
}
