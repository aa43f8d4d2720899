// Package config defines the settings of the automation process and provides
// helpers to load, validate and save them in YAML format.
//
// Settings are layered: built-in defaults, then the YAML file, then the
// dotenv file and the process environment. Compile turns a validated Config
// into the immutable device and rule set used by the scheduler.
package config
