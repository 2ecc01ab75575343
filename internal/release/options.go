package release

import "time"

// InstallOptions mirrors the shape of Helm's action.Install (Atomic/
// Timeout/DisableHooks fields; there is no Wait field), narrowed to what
// this engine's Install operation needs.
type InstallOptions struct {
	Atomic        bool
	DisableHooks  bool
	Timeout       time.Duration
	WaveTimeout   time.Duration
	Force         bool
	PackRef       string
	EngineVersion string
}

// UpgradeOptions mirrors action.Upgrade's option shape.
type UpgradeOptions struct {
	Atomic       bool
	DisableHooks bool
	Timeout      time.Duration
	WaveTimeout  time.Duration
	Force        bool
}

// RollbackOptions mirrors action.Rollback's option shape. TargetRevision of 0
// means "the immediately preceding revision".
type RollbackOptions struct {
	TargetRevision int
	DisableHooks   bool
	Timeout        time.Duration
	WaveTimeout    time.Duration
	Force          bool
}

// UninstallOptions controls the uninstall path.
type UninstallOptions struct {
	DisableHooks  bool
	Timeout       time.Duration
	KeepHistory   bool
	DeleteCRDs    bool
	CRDConfirmToken string
}

func withDefaults(timeout, waveTimeout time.Duration) (time.Duration, time.Duration) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if waveTimeout <= 0 {
		waveTimeout = timeout
	}
	return timeout, waveTimeout
}
