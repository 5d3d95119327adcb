// Package device defines the Bluetooth Low Energy (BLE) platform capabilities
// the Moment SDK consumes, together with the shared error taxonomy and the
// fixed Moment GATT identifiers.
//
// The package holds no behavior of its own beyond error normalization and
// UUID helpers:
//   - Platform finds a peripheral advertising a given service
//   - RawDevice opens GATT connections and reports disconnects
//   - Connection resolves services and characteristics
//   - Characteristic writes raw byte buffers
//
// A go-ble backed implementation lives in the go-ble subpackage.
package device
