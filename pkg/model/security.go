package model

import (
	kconf "github.com/helxplatform/appstore/pkg/configs/tycho"
)

// keys of security context settings, as they are in the app registry.
const (
	KeyRunAsUser      = "runAsUser"
	KeyRunAsGroup     = "runAsGroup"
	KeyFSGroup        = "fsGroup"
	KeyInitRunAsUser  = "initRunAsUser"
	KeyInitRunAsGroup = "initRunAsGroup"
)

type SecurityContext struct {
	RunAsUser  string
	RunAsGroup string
	FSGroup    string
}

// SecurityResolver looks up a security context setting by key.
//
// It returns false when it has no opinion on the key.
type SecurityResolver func(key string) (string, bool)

// RegistrySecurity resolves settings from `securityContext` of the app registry.
func RegistrySecurity(sc map[string]any) SecurityResolver {
	return func(key string) (string, bool) {
		v, ok := sc[key]
		if !ok || v == nil {
			return "", false
		}
		s, err := scalar(v)
		if err != nil || s == "" {
			return "", false
		}
		return s, true
	}
}

// EnvSecurity resolves settings from the process environment.
//
// For runAsUser, TYCHO_APP_RUN_AS_USER wins over NFSRODS_UID.
func EnvSecurity(env kconf.Environ) SecurityResolver {
	return func(key string) (string, bool) {
		var v string
		switch key {
		case KeyRunAsUser:
			v = env.RunAsUser
			if v == "" {
				v = env.NFSRodsUID
			}
		case KeyRunAsGroup:
			v = env.RunAsGroup
		case KeyFSGroup:
			v = env.FSGroup
		case KeyInitRunAsUser:
			v = env.InitRunAsUser
		case KeyInitRunAsGroup:
			v = env.InitRunAsGroup
		}
		return v, v != ""
	}
}

// DefaultSecurity resolves settings from configured defaults.
//
// fsGroup falls back to the group. Init containers run as root by default.
func DefaultSecurity(sc *kconf.SecurityContextConfig) SecurityResolver {
	return func(key string) (string, bool) {
		switch key {
		case KeyRunAsUser:
			return sc.UID(), true
		case KeyRunAsGroup, KeyFSGroup:
			return sc.GID(), true
		case KeyInitRunAsUser, KeyInitRunAsGroup:
			return "0", true
		}
		return "", false
	}
}

// ResolveSecurity asks resolvers in order, and takes the first answer per key.
func ResolveSecurity(resolvers ...SecurityResolver) (main SecurityContext, initContainer SecurityContext) {
	get := func(key string) string {
		for _, r := range resolvers {
			if v, ok := r(key); ok {
				return v
			}
		}
		return ""
	}
	main = SecurityContext{
		RunAsUser:  get(KeyRunAsUser),
		RunAsGroup: get(KeyRunAsGroup),
		FSGroup:    get(KeyFSGroup),
	}
	initContainer = SecurityContext{
		RunAsUser:  get(KeyInitRunAsUser),
		RunAsGroup: get(KeyInitRunAsGroup),
	}
	return main, initContainer
}
