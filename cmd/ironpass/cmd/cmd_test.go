package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironpass/encryptor"
	"github.com/jmcleod/ironpass/vault"
)

// cli runs commands against one temporary store.
type cli struct {
	t   *testing.T
	dir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	return &cli{t: t, dir: t.TempDir()}
}

// run executes args with stdin supplying prompted secrets, one per line.
func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{
		"--config", filepath.Join(c.dir, "missing.yaml"),
		"--dir", filepath.Join(c.dir, "store"),
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(stdin string, args ...string) string {
	c.t.Helper()
	out, err := c.run(stdin, args...)
	require.NoError(c.t, err, "ironpass %s", strings.Join(args, " "))
	return out
}

func lines(s string) []string {
	return strings.Fields(s)
}

func TestCLI_Lifecycle(t *testing.T) {
	c := newCLI(t)
	const pass = "hunter2\n"

	out := c.mustRun("hunter2\nhunter2\n", "init", "alice", "email=alice@example.com")
	assert.Contains(t, out, "identity: alice")
	assert.Contains(t, out, "email=alice@example.com")

	pw := strings.TrimSpace(c.mustRun(pass, "new", "github", "--length", "20", "--tag", "work"))
	assert.Len(t, pw, 20)
	assert.Equal(t, pw, strings.TrimSpace(c.mustRun(pass, "get", "github")))

	c.mustRun(pass, "new", "mail", "--mode", "no-whitespace", "--tag", "home")
	assert.Equal(t, []string{"github", "mail"}, lines(c.mustRun(pass, "list")))
	assert.Equal(t, []string{"github"}, lines(c.mustRun(pass, "list", "--tag", "work")))
	assert.Empty(t, lines(c.mustRun(pass, "list", "--tag", "nope")))
	assert.Equal(t, "github\twork\nmail\thome\n", c.mustRun(pass, "list", "--tags"))

	c.mustRun(pass, "kv", "github", "user=alice")
	c.mustRun(pass, "tag", "github", "code")
	show := c.mustRun(pass, "show", "github")
	assert.Contains(t, show, "user=alice")
	assert.Contains(t, show, "code, work")
	assert.NotContains(t, show, pw)

	out = c.mustRun(pass, "rotate", "github")
	require.True(t, strings.HasPrefix(out, "old: "+pw+"\nnew: "), out)
	newPw := strings.TrimSpace(strings.TrimPrefix(out, "old: "+pw+"\nnew: "))
	assert.NotEqual(t, pw, newPw)
	assert.Len(t, newPw, 20)
	assert.Equal(t, newPw, strings.TrimSpace(c.mustRun(pass, "get", "github")))

	c.mustRun(pass, "delete", "github")
	assert.Equal(t, []string{"mail"}, lines(c.mustRun(pass, "list")))

	_, err := c.run(pass, "get", "github")
	assert.ErrorIs(t, err, vault.ErrNotExist)

	out = c.mustRun(pass, "id", "phone=555")
	assert.Contains(t, out, "phone=555")
	assert.Contains(t, out, "email=alice@example.com")
}

func TestCLI_ManualPassword(t *testing.T) {
	c := newCLI(t)
	c.mustRun("pw\npw\n", "init", "bob")

	out := c.mustRun("pw\ns3cret!\ns3cret!\n", "new", "bank", "--manual")
	assert.Equal(t, "s3cret!\n", out)
	assert.Equal(t, "s3cret!\n", c.mustRun("pw\n", "get", "bank"))

	_, err := c.run("pw\none\ntwo\n", "new", "other", "--manual")
	assert.ErrorIs(t, err, errPassphraseMismatch)
}

func TestCLI_WrongPassphrase(t *testing.T) {
	c := newCLI(t)
	c.mustRun("right\nright\n", "init", "carol")
	c.mustRun("right\n", "new", "svc")

	_, err := c.run("wrong\n", "get", "svc")
	assert.ErrorIs(t, err, vault.ErrPasswordIncorrect)

	_, err = c.run("wrong\n", "list")
	assert.ErrorIs(t, err, vault.ErrPasswordIncorrect)
}

func TestCLI_InitMismatch(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("one\ntwo\n", "init", "dave")
	assert.ErrorIs(t, err, errPassphraseMismatch)

	_, err = c.run("pw\npw\n", "init", "dave", "notakv")
	assert.Error(t, err)
}

func TestCLI_Passwd(t *testing.T) {
	c := newCLI(t)
	c.mustRun("old\nold\n", "init", "erin")
	pw := c.mustRun("old\n", "new", "svc")

	c.mustRun("old\nnew\nnew\n", "passwd")
	assert.Equal(t, pw, c.mustRun("new\n", "get", "svc"))

	_, err := c.run("old\n", "get", "svc")
	assert.ErrorIs(t, err, vault.ErrPasswordIncorrect)
}

func TestCLI_Migrate(t *testing.T) {
	c := newCLI(t)
	c.mustRun("pw\npw\n", "--cipher", "legacy-cbc", "init", "frank")
	pw := c.mustRun("pw\n", "--cipher", "legacy-cbc", "new", "svc")

	out := c.mustRun("pw\n", "migrate", "--from", "legacy-cbc", "--to", "aes-gcm")
	assert.Contains(t, out, "legacy-cbc -> aes-gcm, 2 migrated, 0 skipped")

	assert.Equal(t, pw, c.mustRun("pw\n", "--cipher", "aes-gcm", "get", "svc"))

	out = c.mustRun("pw\n", "migrate", "--from", "legacy-cbc", "--to", "aes-gcm")
	assert.Contains(t, out, "0 migrated, 2 skipped")

	history := c.mustRun("", "migrate", "--history")
	assert.Len(t, strings.Split(strings.TrimSpace(history), "\n"), 2)
	assert.Contains(t, history, "ok")

	_, err := c.run("", "migrate", "--to", "rot13")
	assert.Error(t, err)

	out = c.mustRun("", "migrate", "--recover")
	assert.Empty(t, out)
}

func TestCLI_MigrateDetectsSourceCipher(t *testing.T) {
	c := newCLI(t)
	c.mustRun("pw\npw\n", "--cipher", "legacy-cbc", "init", "gina")
	pw := c.mustRun("pw\n", "--cipher", "legacy-cbc", "new", "svc")

	out := c.mustRun("pw\n", "migrate")
	assert.Contains(t, out, "legacy-cbc -> aes-gcm, 2 migrated, 0 skipped")
	assert.Equal(t, pw, c.mustRun("pw\n", "get", "svc"))
}

func TestCLI_ConfigCipherRejected(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(c.dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cipher: rot13\n"), 0o600))

	_, err := c.run("", "--config", path, "--cipher", "aes-gcm", "list")
	require.Error(t, err)
	assert.ErrorIs(t, err, encryptor.ErrUnknownVersion)
}

func TestCLI_Version(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", "/nonexistent/ironpass.yaml", "version", "--short"})
	require.NoError(t, root.Execute())
	assert.Equal(t, Version+"\n", out.String())
}
