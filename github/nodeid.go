package github

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// The id returned from the GraphQL v4 API is called the node_id in the
// REST v3 API. The REST id can be recovered by decoding the node_id, but
// the encoding is undocumented and has changed once already, so two
// variants exist:
//
//   - versioned: "RA_" followed by base64 bytes; the REST id is the
//     unsigned big-endian 32-bit integer in the last four decoded bytes.
//   - legacy: a bare base64 string whose decoded text looks like
//     "012:ReleaseAsset18381577"; the REST id follows the marker.
//
// Dispatch is strictly on the "RA_" prefix. A payload that matches
// neither variant is a NodeIDFormatError, never a guess: acting on a
// wrongly-decoded id could delete someone else's asset.

const (
	versionedPrefix   = "RA_"
	legacyAssetMarker = "ReleaseAsset"
)

// NodeIDFormatError means a release-asset node id matched neither known
// encoding.
type NodeIDFormatError struct {
	NodeID  string
	Decoded string
	Reason  string
}

func (err *NodeIDFormatError) Error() string {
	if err.Decoded != "" {
		return fmt.Sprintf("unrecognized node_id format: %q (decoded: %q): %s",
			err.NodeID, err.Decoded, err.Reason)
	}
	return fmt.Sprintf("unrecognized node_id format: %q: %s", err.NodeID, err.Reason)
}

// AssetIDFromNodeID extracts the REST asset id from a GraphQL release
// asset node id.
func AssetIDFromNodeID(nodeID string) (string, error) {
	if strings.HasPrefix(nodeID, versionedPrefix) {
		return assetIDFromVersionedNodeID(nodeID)
	}
	return assetIDFromLegacyNodeID(nodeID)
}

func assetIDFromVersionedNodeID(nodeID string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(nodeID, versionedPrefix))
	if err != nil {
		return "", &NodeIDFormatError{NodeID: nodeID, Reason: fmt.Sprintf("decoding base64: %v", err)}
	}

	if len(payload) < 4 {
		return "", &NodeIDFormatError{NodeID: nodeID, Reason: "payload shorter than 4 bytes"}
	}

	id := binary.BigEndian.Uint32(payload[len(payload)-4:])
	return strconv.FormatUint(uint64(id), 10), nil
}

func assetIDFromLegacyNodeID(nodeID string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(nodeID)
	if err != nil {
		return "", &NodeIDFormatError{NodeID: nodeID, Reason: fmt.Sprintf("decoding base64: %v", err)}
	}

	decoded := string(payload)
	i := strings.Index(decoded, legacyAssetMarker)
	if i == -1 {
		return "", &NodeIDFormatError{
			NodeID:  nodeID,
			Decoded: decoded,
			Reason:  fmt.Sprintf("missing %q marker", legacyAssetMarker),
		}
	}

	return decoded[i+len(legacyAssetMarker):], nil
}
