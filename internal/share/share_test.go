package share

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertwitch/poolsmith/internal/configuration"
	"github.com/desertwitch/poolsmith/internal/linefile"
	"github.com/desertwitch/poolsmith/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"
)

type fakeRunner struct {
	calls   [][]string
	inputs  map[string]string
	outputs map[string]string
	errors  map[string]error
	onRun   func(f *fakeRunner, argv []string)
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	argv := append([]string{name}, args...)
	f.calls = append(f.calls, argv)

	key := strings.Join(argv, " ")
	out, err := f.outputs[key], f.errors[key]

	if f.onRun != nil {
		f.onRun(f, argv)
	}

	return out, err
}

func (f *fakeRunner) RunInput(_ context.Context, input string, name string, args ...string) (string, error) {
	argv := append([]string{name}, args...)
	f.calls = append(f.calls, argv)

	key := strings.Join(argv, " ")
	if f.inputs == nil {
		f.inputs = map[string]string{}
	}
	f.inputs[key] = input

	return f.outputs[key], f.errors[key]
}

func (f *fakeRunner) called(prefix string) bool {
	for _, argv := range f.calls {
		if strings.HasPrefix(strings.Join(argv, " "), prefix) {
			return true
		}
	}

	return false
}

type fakeUnix struct {
	chowns map[string][2]int
	chmods map[string]uint32
}

func (f *fakeUnix) Chown(path string, uid, gid int) error {
	if f.chowns == nil {
		f.chowns = map[string][2]int{}
	}
	f.chowns[path] = [2]int{uid, gid}

	return nil
}

func (f *fakeUnix) Chmod(path string, mode uint32) error {
	if f.chmods == nil {
		f.chmods = map[string]uint32{}
	}
	f.chmods[path] = mode

	return nil
}

type fakeFS struct {
	fsType     schema.FilesystemType
	typeErr    error
	mountpoint string
	options    []string
}

func (f *fakeFS) TypeOf(_ string) (schema.FilesystemType, error) {
	return f.fsType, f.typeErr
}

func (f *fakeFS) MountpointOf(_ context.Context, _ string) (string, error) {
	return f.mountpoint, nil
}

func (f *fakeFS) EnsureMountOption(_ context.Context, _ string, option string) (bool, error) {
	f.options = append(f.options, option)

	return true, nil
}

type fakeServices struct {
	units []string
}

func (f *fakeServices) ReloadOrRestart(_ context.Context, units ...string) error {
	f.units = append(f.units, units...)

	return nil
}

type testEnv struct {
	handler  *Handler
	runner   *fakeRunner
	unix     *fakeUnix
	fs       *fakeFS
	services *fakeServices
	settings *configuration.Settings
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	osHandler := &schema.OS{}

	settings := configuration.DefaultSettings()
	settings.ExportsFile = filepath.Join(dir, "exports")
	settings.SambaSharesFile = filepath.Join(dir, "shares.conf")
	settings.ProjectsFile = filepath.Join(dir, "projects")
	settings.ProjidFile = filepath.Join(dir, "projid")

	runner := &fakeRunner{outputs: map[string]string{}, errors: map[string]error{}}
	unixHandler := &fakeUnix{}
	fsHandler := &fakeFS{fsType: schema.FilesystemXFS, mountpoint: "/srv"}
	servicesHandler := &fakeServices{}

	handler := NewHandler(
		runner, osHandler, unixHandler, fsHandler, servicesHandler, settings,
		linefile.NewStore(settings.ExportsFile, ExportsKey, osHandler),
		linefile.NewStore(settings.ProjectsFile, ProjectsKey, osHandler),
		linefile.NewStore(settings.ProjidFile, ProjidKey, osHandler),
	)

	return &testEnv{
		handler:  handler,
		runner:   runner,
		unix:     unixHandler,
		fs:       fsHandler,
		services: servicesHandler,
		settings: settings,
	}
}

// knownIdentities seeds the runner with resolvable system identities.
func (e *testEnv) knownIdentities(entries map[string]string) {
	for query, entry := range entries {
		e.runner.outputs["getent "+query] = entry
	}
}

func mediaRequest(path string) *Request {
	return &Request{
		Name:           "media",
		Path:           path,
		Protocols:      []schema.Protocol{schema.ProtocolNFS, schema.ProtocolCIFS},
		Clients:        []string{"192.168.1.0/24"},
		RestrictedUser: "plex",
		QuotaBytes:     500 * 1024 * 1024 * 1024,
		NonInteractive: true,
	}
}

// TestProvision_MediaShare runs the full controller for a media share served
// to a local network with a restricted service account, verifying every
// stage's observable side effects.
func TestProvision_MediaShare(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "media")

	env.knownIdentities(map[string]string{
		"group share_media": "share_media:x:1500:",
		"passwd plex":       "plex:x:997:1500::/nonexistent:/usr/sbin/nologin",
		"passwd nobody":     "nobody:x:65534:65534:nobody:/nonexistent:/usr/sbin/nologin",
		"group nogroup":     "nogroup:x:65534:",
	})

	outcomes, err := env.handler.Provision(context.Background(), mediaRequest(path))
	require.NoError(t, err)
	assert.Empty(t, schema.Warnings(outcomes))

	// Directory: root-owned, owning group, setgid group-rwx mode.
	assert.Equal(t, [2]int{0, 1500}, env.unix.chowns[path])
	assert.Equal(t, uint32(0o2770), env.unix.chmods[path])
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// ACLs: anonymous identity granted access, defaults inherited below.
	assert.True(t, env.runner.called(fmt.Sprintf("setfacl -m u:65534:rwx,g:65534:rwx %s", path)))
	assert.True(t, env.runner.called(
		fmt.Sprintf("setfacl -d -m u::rwx,g::rwx,g:1500:rwx,u:65534:rwx,g:65534:rwx,m::rwx,o::--- %s", path)))

	// NFS: one squashing export line per client range.
	exports, err := os.ReadFile(env.settings.ExportsFile)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf(
		"%s 192.168.1.0/24(rw,sync,no_subtree_check,all_squash,anonuid=65534,anongid=65534,sec=sys)\n",
		path), string(exports))

	// CIFS: share definition keyed on the share name.
	definitions, err := ini.Load(env.settings.SambaSharesFile)
	require.NoError(t, err)
	section, err := definitions.GetSection("media")
	require.NoError(t, err)
	assert.Equal(t, path, section.Key("path").String())
	assert.Equal(t, "@share_media plex", section.Key("valid users").String())
	assert.Equal(t, "share_media", section.Key("force group").String())
	assert.Equal(t, "no", section.Key("guest ok").String())
	assert.Equal(t, "0660", section.Key("create mask").String())

	// Restricted user existed already: joined, not recreated, credential set.
	assert.True(t, env.runner.called("usermod -aG share_media plex"))
	assert.False(t, env.runner.called("useradd"))
	input := env.runner.inputs["smbpasswd -s -a plex"]
	lines := strings.Split(strings.TrimRight(input, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, lines[0], lines[1])
	assert.Len(t, lines[0], credentialLength)

	// Quota: durable accounting option, mappings, setup and hard limit.
	assert.Equal(t, []string{"prjquota"}, env.fs.options)
	projectID := ProjectID(path)
	projects, err := os.ReadFile(env.settings.ProjectsFile)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d:%s\n", projectID, path), string(projects))
	projid, err := os.ReadFile(env.settings.ProjidFile)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("share_media:%d\n", projectID), string(projid))
	assert.True(t, env.runner.called("xfs_quota -x -c project -s share_media /srv"))
	assert.True(t, env.runner.called(
		fmt.Sprintf("xfs_quota -x -c limit -p bhard=%d share_media /srv", mediaRequest(path).QuotaBytes)))

	// Activation: tables pushed into the running daemons.
	assert.True(t, env.runner.called("exportfs -ra"))
	assert.True(t, env.runner.called("testparm -s"))
	assert.Equal(t, []string{unitNFS, unitSMB, unitNMB}, env.services.units)
}

// TestProvision_CreatesMissingIdentities verifies that an absent owning group
// and restricted user are created rather than assumed.
func TestProvision_CreatesMissingIdentities(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "media")

	env.runner.errors["getent group share_media"] = assert.AnError
	env.runner.errors["getent passwd plex"] = assert.AnError
	env.runner.onRun = func(f *fakeRunner, argv []string) {
		switch argv[0] {
		case "groupadd":
			delete(f.errors, "getent group share_media")
			f.outputs["getent group share_media"] = "share_media:x:1501:"
		case "useradd":
			delete(f.errors, "getent passwd plex")
			f.outputs["getent passwd plex"] = "plex:x:998:1501::/nonexistent:/usr/sbin/nologin"
		}
	}

	_, err := env.handler.Provision(context.Background(), mediaRequest(path))
	require.NoError(t, err)

	assert.True(t, env.runner.called("groupadd share_media"))
	assert.True(t, env.runner.called("useradd -M -g share_media -s /usr/sbin/nologin plex"))
	assert.Equal(t, [2]int{0, 1501}, env.unix.chowns[path])
}

// TestProvision_Idempotent verifies that re-running the controller with the
// same request replaces its own entries instead of duplicating them.
func TestProvision_Idempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "media")
	env.knownIdentities(map[string]string{
		"group share_media": "share_media:x:1500:",
		"passwd plex":       "plex:x:997:1500::/nonexistent:/usr/sbin/nologin",
	})

	req := mediaRequest(path)

	_, err := env.handler.Provision(context.Background(), req)
	require.NoError(t, err)
	_, err = env.handler.Provision(context.Background(), req)
	require.NoError(t, err)

	exports, err := os.ReadFile(env.settings.ExportsFile)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(exports), path+" "))

	definitions, err := os.ReadFile(env.settings.SambaSharesFile)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(definitions), "[media]"))

	projects, err := os.ReadFile(env.settings.ProjectsFile)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(projects), path))
}

// TestProvision_NarrowerClients verifies that re-provisioning with a narrower
// client set drops the previously wider grants.
func TestProvision_NarrowerClients(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "media")
	env.knownIdentities(map[string]string{
		"group share_media": "share_media:x:1500:",
		"passwd plex":       "plex:x:997:1500::/nonexistent:/usr/sbin/nologin",
	})

	req := mediaRequest(path)
	req.Clients = []string{"192.168.0.0/16", "10.0.0.0/8"}
	_, err := env.handler.Provision(context.Background(), req)
	require.NoError(t, err)

	req.Clients = []string{"192.168.1.0/24"}
	_, err = env.handler.Provision(context.Background(), req)
	require.NoError(t, err)

	exports, err := os.ReadFile(env.settings.ExportsFile)
	require.NoError(t, err)
	assert.Contains(t, string(exports), "192.168.1.0/24")
	assert.NotContains(t, string(exports), "192.168.0.0/16")
	assert.NotContains(t, string(exports), "10.0.0.0/8")
}

// TestProvision_DegradesWithoutACLSupport verifies that a filesystem without
// ACL and project-quota support degrades those stages to warnings while the
// remaining stages still complete.
func TestProvision_DegradesWithoutACLSupport(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.fs.fsType = schema.FilesystemExt4

	path := filepath.Join(t.TempDir(), "media")
	env.knownIdentities(map[string]string{
		"group share_media": "share_media:x:1500:",
		"passwd plex":       "plex:x:997:1500::/nonexistent:/usr/sbin/nologin",
	})

	outcomes, err := env.handler.Provision(context.Background(), mediaRequest(path))
	require.NoError(t, err)

	warnings := schema.Warnings(outcomes)
	require.Len(t, warnings, 2)
	assert.Equal(t, "access-acls", warnings[0].Stage)
	assert.Equal(t, "capacity-quota", warnings[1].Stage)

	assert.False(t, env.runner.called("setfacl"))
	assert.False(t, env.runner.called("xfs_quota"))
	assert.True(t, env.runner.called("exportfs -ra"), "later stages must still run")
}

// TestProvision_GroupFailureFatal verifies that an unavailable owning group
// halts the controller before any directory or table mutation.
func TestProvision_GroupFailureFatal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "media")

	env.runner.errors["getent group share_media"] = assert.AnError
	env.runner.errors["groupadd share_media"] = assert.AnError

	outcomes, err := env.handler.Provision(context.Background(), mediaRequest(path))
	require.ErrorIs(t, err, ErrGroupFailed)

	require.Len(t, outcomes, 1)
	assert.Equal(t, schema.StatusFatal, outcomes[0].Status)

	assert.NoDirExists(t, path)
	assert.NoFileExists(t, env.settings.ExportsFile)
	assert.False(t, env.runner.called("setfacl"))
}

// TestProvision_Validation rejects malformed requests before any mutation.
func TestProvision_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(req *Request)
	}{
		{"empty name", func(req *Request) { req.Name = " " }},
		{"relative path", func(req *Request) { req.Path = "srv/media" }},
		{"no protocols", func(req *Request) { req.Protocols = nil }},
		{"nfs without clients", func(req *Request) { req.Clients = nil }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			req := mediaRequest("/srv/media")
			tt.mutate(req)

			_, err := env.handler.Provision(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Empty(t, env.runner.calls)
		})
	}
}

// TestProjectID verifies that quota project identifiers are stable across
// path spellings and stay inside the reserved identifier window.
func TestProjectID(t *testing.T) {
	t.Parallel()

	id := ProjectID("/srv/media")
	assert.Equal(t, id, ProjectID("/srv/media/"))
	assert.Equal(t, id, ProjectID("/srv//media"))
	assert.NotEqual(t, id, ProjectID("/srv/backups"))

	assert.GreaterOrEqual(t, id, uint32(projectIDBase))
	assert.Less(t, id, uint32(projectIDBase+projectIDSpan))
}

// TestGenerateCredential verifies credential shape and non-repetition.
func TestGenerateCredential(t *testing.T) {
	t.Parallel()

	first, err := generateCredential()
	require.NoError(t, err)
	second, err := generateCredential()
	require.NoError(t, err)

	assert.Len(t, first, credentialLength)
	assert.NotEqual(t, first, second)

	for _, r := range first {
		assert.Contains(t, credentialAlphabet, string(r))
	}
}
