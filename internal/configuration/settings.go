package configuration

import (
	"errors"
	"io/fs"
	"log/slog"
	"time"
)

const (
	// SettingsFile is the operational settings file of the application.
	SettingsFile = "/etc/poolsmith.conf"

	// SettingRegistryFile overrides [Settings.RegistryFile].
	SettingRegistryFile = "registryFile"

	// SettingMountTableFile overrides [Settings.MountTableFile].
	SettingMountTableFile = "mountTableFile"

	// SettingExportsFile overrides [Settings.ExportsFile].
	SettingExportsFile = "exportsFile"

	// SettingSambaSharesFile overrides [Settings.SambaSharesFile].
	SettingSambaSharesFile = "sambaSharesFile"

	// SettingProjectsFile overrides [Settings.ProjectsFile].
	SettingProjectsFile = "projectsFile"

	// SettingProjidFile overrides [Settings.ProjidFile].
	SettingProjidFile = "projidFile"

	// SettingActionLogFile overrides [Settings.ActionLogFile].
	SettingActionLogFile = "actionLogFile"

	// SettingSummaryFile overrides [Settings.SummaryFile].
	SettingSummaryFile = "summaryFile"

	// SettingSyncWaitMax overrides [Settings.SyncWaitMax].
	SettingSyncWaitMax = "syncWaitMax"

	// SettingAnonUser overrides [Settings.AnonUser].
	SettingAnonUser = "anonUser"

	// SettingAnonGroup overrides [Settings.AnonGroup].
	SettingAnonGroup = "anonGroup"
)

// Settings are the operational settings of the application. They concern the
// tool itself (where the system tables live, how long to wait on the
// subsystems), not any one pool or share.
type Settings struct {
	RegistryFile    string
	MountTableFile  string
	ExportsFile     string
	SambaSharesFile string
	ProjectsFile    string
	ProjidFile      string
	ActionLogFile   string
	SummaryFile     string

	SyncWaitMax time.Duration

	AnonUser  string
	AnonGroup string
}

// DefaultSettings returns the [Settings] for a stock system layout.
func DefaultSettings() *Settings {
	return &Settings{
		RegistryFile:    "/etc/mdadm/mdadm.conf",
		MountTableFile:  "/etc/fstab",
		ExportsFile:     "/etc/exports",
		SambaSharesFile: "/etc/samba/shares.conf",
		ProjectsFile:    "/etc/projects",
		ProjidFile:      "/etc/projid",
		ActionLogFile:   "/var/log/poolsmith/actions.log",
		SummaryFile:     "/etc/poolsmith/pool.yaml",
		SyncWaitMax:     15 * time.Minute,
		AnonUser:        "nobody",
		AnonGroup:       "nogroup",
	}
}

// EstablishSettings reads the operational [Settings], applying any overrides
// from the given settings file over the defaults. A missing settings file is
// not an error; the defaults then apply unchanged.
func (c *Handler) EstablishSettings(path string) (*Settings, error) {
	settings := DefaultSettings()

	envMap, err := c.ReadGeneric(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return settings, nil
		}

		return nil, err
	}

	slog.Debug("Applying operational settings overrides.", "path", path)

	applyString := func(key string, target *string) {
		if value := c.MapKeyToString(envMap, key); value != "" {
			*target = value
		}
	}

	applyString(SettingRegistryFile, &settings.RegistryFile)
	applyString(SettingMountTableFile, &settings.MountTableFile)
	applyString(SettingExportsFile, &settings.ExportsFile)
	applyString(SettingSambaSharesFile, &settings.SambaSharesFile)
	applyString(SettingProjectsFile, &settings.ProjectsFile)
	applyString(SettingProjidFile, &settings.ProjidFile)
	applyString(SettingActionLogFile, &settings.ActionLogFile)
	applyString(SettingSummaryFile, &settings.SummaryFile)
	applyString(SettingAnonUser, &settings.AnonUser)
	applyString(SettingAnonGroup, &settings.AnonGroup)

	if duration := c.MapKeyToDuration(envMap, SettingSyncWaitMax); duration > 0 {
		settings.SyncWaitMax = duration
	}

	return settings, nil
}
