package share

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/desertwitch/poolsmith/internal/schema"
)

const credentialLength = 20

const credentialAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ensureRestrictedUser establishes the optional restricted service account:
// a no-login system user whose primary group is the owning group, so its
// writes land group-accessible. An already existing user is joined to the
// owning group instead. When CIFS is enabled the user also receives a
// protocol credential, generated and surfaced exactly once in
// non-interactive runs.
func (h *Handler) ensureRestrictedUser(ctx context.Context, st *state) schema.Outcome {
	user := st.req.RestrictedUser
	if user == "" {
		return schema.Success("")
	}

	if _, exists := h.lookupUserID(ctx, user); exists {
		if out, err := h.runner.Run(ctx, "usermod", "-aG", st.req.GroupName(), user); err != nil {
			return schema.Warning("", fmt.Sprintf("failed to join user %s to owning group (%s)", user, out), err)
		}
	} else {
		if out, err := h.runner.Run(ctx, "useradd", "-M", "-g", st.req.GroupName(), "-s", shellNologin, user); err != nil {
			return schema.Warning("", fmt.Sprintf("failed to create restricted user %s (%s)", user, out), err)
		}
		slog.Info("Created restricted user.", "user", user, "group", st.req.GroupName())
	}

	if !st.req.HasProtocol(schema.ProtocolCIFS) {
		return schema.Success("")
	}

	if st.req.NonInteractive {
		credential, err := generateCredential()
		if err != nil {
			return schema.Warning("", "failed to generate protocol credential", err)
		}

		input := credential + "\n" + credential + "\n"
		if out, err := h.runner.RunInput(ctx, input, "smbpasswd", "-s", "-a", user); err != nil {
			return schema.Warning("", fmt.Sprintf("failed to set protocol credential for %s (%s)", user, out), err)
		}

		// Surfaced once and never persisted; the operator rotates it with
		// smbpasswd if it is lost.
		slog.Info("Generated protocol credential for restricted user.",
			"user", user,
			"credential", credential,
		)

		return schema.Success("")
	}

	if out, err := h.runner.Run(ctx, "smbpasswd", "-a", user); err != nil {
		return schema.Warning("", fmt.Sprintf("failed to set protocol credential for %s (%s)", user, out), err)
	}

	return schema.Success("")
}

// generateCredential produces a random alphanumeric credential.
func generateCredential() (string, error) {
	credential := make([]byte, credentialLength)

	for i := range credential {
		index, err := rand.Int(rand.Reader, big.NewInt(int64(len(credentialAlphabet))))
		if err != nil {
			return "", fmt.Errorf("(share-user) failed to read randomness: %w", err)
		}
		credential[i] = credentialAlphabet[index.Int64()]
	}

	return string(credential), nil
}
