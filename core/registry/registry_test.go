package registry

import (
	"testing"
	"time"

	"github.com/farmgate-io/farmgate/core/csql"
)

func TestRegistry(t *testing.T) {

	type foo struct {
		A string
		B string
	}

	write := foo{
		A: "Hello",
		B: "World",
	}

	db := csql.OpenMemory()
	defer db.Close()

	testRegistry := New(db).Accessor("_test_")

	// test non-existing key
	var something interface{}
	createdAt, err := testRegistry.Read("key does not exist", &something)
	if err != nil {
		t.Fatal(err)
	}
	if !createdAt.IsZero() {
		t.Fatal("non existing key seems to exist")
	}

	now := time.Now()
	err = testRegistry.Write("test", write)
	if err != nil {
		t.Fatal(err)
	}
	var read foo
	createdAt, err = testRegistry.Read("test", &read)
	if err != nil {
		t.Fatal(err)
	}
	if createdAt.Before(now.Add(-time.Second)) {
		t.Fatal("timestamp not updated on write")
	}
	if read != write {
		t.Fatalf("read %v, wrote %v", read, write)
	}

	// overwrite and read back again
	write.B = "Gateway"
	if err = testRegistry.Write("test", write); err != nil {
		t.Fatal(err)
	}
	if _, err = testRegistry.Read("test", &read); err != nil {
		t.Fatal(err)
	}
	if read.B != "Gateway" {
		t.Fatal("value was not overwritten")
	}

	if err = testRegistry.Delete("test"); err != nil {
		t.Fatal(err)
	}
	createdAt, err = testRegistry.Read("test", &read)
	if err != nil {
		t.Fatal(err)
	}
	if !createdAt.IsZero() {
		t.Fatal("deleted key seems to exist")
	}
}
