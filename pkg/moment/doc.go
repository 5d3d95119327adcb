// Package moment connects to a Moment haptic peripheral over Bluetooth LE
// and uploads code to it.
//
// A Device scans for a peripheral advertising the Moment filter service,
// connects, and discovers the data service and write characteristic, each
// stage guarded by exponential backoff. Code passed to Run is split into
// 19-byte chunks written one after another. When the peripheral drops the
// link the connection stages run again against the same peripheral.
//
//	d := moment.New(platform, moment.WithLogger(logger))
//	d.Connect()
//	...
//	d.Run("5+5;")
package moment
