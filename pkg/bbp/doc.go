// Package bbp provides a high-level API for parsing and writing binary blocks
// described by block scripts.
//
// # Overview
//
// A schema document is a YAML file holding a block script plus the settings it
// is compiled with. The package loads documents from disk, compiles them once,
// caches the result and exposes:
//
//   - Binary data parsing to Go maps
//   - JSON serialization and deserialization
//   - Schema caching with expiry
//   - Context support for cancellation and timeouts
//
// # Schema Documents
//
//	id: packet
//	bit-order: msb
//	flags: [skip-remaining-fields-on-eof]
//	custom-types: [int24, latin1]
//	externals:
//	  body: "field('len') - 2"
//	size-policies:
//	  - pattern: "*"
//	    expr: "size <= 4096"
//	script: |
//	  ubyte len;
//	  ubyte [$body] payload;
//	  <ushort crc;
//
// Externals are expr-lang expressions answering $name references, size
// policies are CEL rules checked before every array is read, and custom-types
// selects the builtin types of package customtypes by name.
//
// # Quick Start
//
//	result, err := bbp.ParseBinary(data, "packet.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result["len"])
//
// # JSON Support
//
//	jsonData, err := bbp.SerializeToJSON(data, "packet.yaml")
//	// edit jsonData ...
//	newData, err := bbp.SerializeFromJSON(jsonData, "packet.yaml")
//
// # Custom Parser Instance
//
//	parser := bbp.NewParser(
//	    bbp.WithCaching(time.Hour),
//	    bbp.WithDebugMode(true),
//	)
//	result, err := parser.ParseBinary(ctx, data, "packet.yaml")
//
// Options that change compilation (WithBitOrder, WithFlags, WithCustomTypes,
// WithVariables) bypass the cache when passed to a single call.
package bbp
