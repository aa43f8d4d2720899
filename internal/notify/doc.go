// Package notify publishes automation events to an MQTT broker.
//
// Every action the scheduler executes, successful or not, is published as a
// JSON Event on "<topic_prefix>/automation/fired". Publishing is optional:
// when MQTT is disabled the scheduler uses Nop.
package notify
