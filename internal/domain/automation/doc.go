// Package automation contains the core domain types of the automation loop.
//
// It defines DeviceRef (a logical device bound to a vendor identifier),
// SensorReading (metrics fetched on a single tick), Action (a typed device
// command resolved when the configuration is loaded) and the two rule kinds:
// ThresholdRule and TimeRule.
package automation
