package bbp_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/twinfer/bbp-plugin/pkg/bbp"
	"github.com/twinfer/bbp-plugin/pkg/field"
)

func ExampleCompileScript() {
	schema, err := bbp.CompileScript("ubyte len; ubyte [len] payload; <ushort crc;")
	if err != nil {
		log.Fatal(err)
	}

	root, err := schema.ParseBytes(context.Background(), []byte{2, 0xAA, 0xBB, 0x34, 0x12})
	if err != nil {
		log.Fatal(err)
	}
	values := field.ToMap(root)
	fmt.Println(values["len"], values["payload"], values["crc"])
	// Output: 2 [170 187] 4660
}

func ExampleParser_SerializeFromJSON() {
	dir, err := os.MkdirTemp("", "bbp-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	schemaPath := filepath.Join(dir, "point.yaml")
	doc := "id: point\nscript: |\n  <short x;\n  <short y;\n"
	if err := os.WriteFile(schemaPath, []byte(doc), 0644); err != nil {
		log.Fatal(err)
	}

	parser := bbp.NewParser()
	data, err := parser.SerializeFromJSON(context.Background(), []byte(`{"x": 1, "y": -1}`), schemaPath)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("% x\n", data)
	// Output: 01 00 ff ff
}
