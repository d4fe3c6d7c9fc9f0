package partition

import (
	"testing"

	"github.com/phil-mansfield/pmanager/mpitransport"
)

func TestNewConstructsRCBAndRejectsUnimplementedMethods(t *testing.T) {
	comms := mpitransport.NewLocalComms(1)

	adp, err := New(MethodRCB, comms[0])
	if err != nil {
		t.Fatalf("New(MethodRCB): %v", err)
	}
	if _, ok := adp.(*RCB); !ok {
		t.Fatalf("New(MethodRCB) returned %T, want *RCB", adp)
	}

	for _, m := range []Method{MethodRIB, MethodHSFC} {
		if _, err := New(m, comms[0]); err == nil {
			t.Errorf("New(%v) should fail fast; RIB/HSFC have no concrete adapter", m)
		}
	}
}
