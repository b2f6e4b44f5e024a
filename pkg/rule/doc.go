// Package rule defines gateway routing rules and the stores that hold them.
//
// A Rule bundles filter configurations for one logical route. Rules are
// ordered by Order and then by ID, and compare equal by ID alone:
//
//	rules := []*rule.Rule{{ID: "b", Order: 5}, {ID: "a", Order: 5}}
//	rule.Sort(rules) // "a", then "b"
//
// # Stores
//
// Three Store implementations are provided:
//   - MemoryStore: in-process map, used by tests and as the target of LoadFile
//   - LoadFile: reads a YAML rule file once at start-up
//   - SQLiteStore: persistent store, pure Go ("sqlite") or cgo ("sqlite3") driver
//
// Rule file layout:
//
//	rules:
//	  - id: user-service
//	    name: User service
//	    protocol: http
//	    order: 10
//	    filter_configs:
//	      - id: router
//	        config: '{"host":"127.0.0.1:8081","path_prefix":"/api"}'
//
// Stores are read once per request by the gateway and are never mutated by
// request processing.
package rule
