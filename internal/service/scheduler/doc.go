// Package scheduler drives the automation loop.
//
// Each tick fires the due time rules first and then polls every sensor
// device, evaluating threshold rules against the fresh reading. Failures of a
// single fetch or action are logged and never abort the tick. Run wires the
// configuration, the vendor API client, the executor and the optional MQTT
// publisher together and loops until the context is canceled.
package scheduler
