package github

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestAssetIDFromLegacyNodeID(t *testing.T) {
	nodeID := base64.StdEncoding.EncodeToString([]byte("012:ReleaseAsset18381577"))

	id, err := AssetIDFromNodeID(nodeID)
	if err != nil {
		t.Fatalf("AssetIDFromNodeID returned error: %v", err)
	}
	if id != "18381577" {
		t.Fatalf("expected id 18381577, got %q", id)
	}
}

func TestAssetIDFromLegacyNodeIDMissingMarker(t *testing.T) {
	nodeID := base64.StdEncoding.EncodeToString([]byte("012:ReleaseBadAsset18381577"))

	_, err := AssetIDFromNodeID(nodeID)
	if err == nil {
		t.Fatal("expected error for payload without ReleaseAsset marker")
	}

	var formatErr *NodeIDFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected NodeIDFormatError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "format") {
		t.Fatalf("expected error message to mention the format, got %q", err.Error())
	}
}

func TestAssetIDFromLegacyNodeIDBadBase64(t *testing.T) {
	_, err := AssetIDFromNodeID("not*base64*at*all")

	var formatErr *NodeIDFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected NodeIDFormatError, got %T: %v", err, err)
	}
}

func TestAssetIDFromVersionedNodeID(t *testing.T) {
	payload := []byte{0x00, 0x05, 0x12}
	tail := make([]byte, 4)
	binary.BigEndian.PutUint32(tail, 44866858)
	payload = append(payload, tail...)
	nodeID := "RA_" + base64.StdEncoding.EncodeToString(payload)

	id, err := AssetIDFromNodeID(nodeID)
	if err != nil {
		t.Fatalf("AssetIDFromNodeID returned error: %v", err)
	}
	if id != "44866858" {
		t.Fatalf("expected id 44866858, got %q", id)
	}
}

func TestAssetIDFromVersionedNodeIDShortPayload(t *testing.T) {
	nodeID := "RA_" + base64.StdEncoding.EncodeToString([]byte{0x01, 0x02})

	_, err := AssetIDFromNodeID(nodeID)

	var formatErr *NodeIDFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected NodeIDFormatError, got %T: %v", err, err)
	}
}

func TestAssetIDFromVersionedNodeIDBadBase64(t *testing.T) {
	_, err := AssetIDFromNodeID("RA_!!!")

	var formatErr *NodeIDFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected NodeIDFormatError, got %T: %v", err, err)
	}
}
