// Package telemetry turns periodic device polls into a consistent stream
// of snapshots.
//
// # Architecture
//
//	          ticker
//	            │
//	            ▼
//	┌────────────────────┐   Poll    ┌──────────────┐
//	│     Aggregator     │──────────▶│ device.Link  │
//	│  (aggregator.go)   │           └──────────────┘
//	└─────────┬──────────┘
//	          │ success: snapshot, sample      failure: counter, stale flag
//	          ▼
//	┌──────────┐  ┌───────────┐  ┌──────────┐  ┌──────────────┐
//	│  Cache   │  │  History  │  │   Hub    │  │  EventSinks  │
//	│ atomic   │  │ FIFO ring │  │ fan-out  │  │ audit, MQTT  │
//	└──────────┘  └───────────┘  └──────────┘  └──────────────┘
//	     ▲                            │
//	 HTTP reads                  subscribers (WebSocket, bridges)
//
// The Cache is the read path for every API request and never touches the
// device. The Hub delivers every snapshot to every subscriber over a bounded
// channel and drops subscribers that fall behind.
//
// # Offline detection
//
// A single failed poll changes nothing visible. Once OfflineThreshold
// consecutive polls fail, the retained snapshot is republished with
// IsOnline=false and Stale=true; device fields keep their last values.
// The next successful poll restores IsOnline.
package telemetry
