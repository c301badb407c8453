package serializer

import (
	"reflect"
	"testing"

	"github.com/tkv-io/tKV/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON": NewJSONSerializer,
	"GOB":  NewGOBSerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Insert request
		{
			MsgType: common.MsgTInsert,
			NS:      "unittests.coll",
			Doc:     []byte(`{"_id":0,"a":1}`),
		},

		// Find response
		{
			MsgType: common.MsgTFind,
			Value:   []byte(`{"_id":0,"a":1}`),
			Ok:      true,
		},

		// ApplyOps request
		{
			MsgType: common.MsgTApplyOps,
			DB:      "unittests",
			Ops:     []byte(`[{"ts":10,"t":1,"op":"i","ns":"unittests.coll","o":{"_id":0}}]`),
			Mode:    "nonatomic",
			Term:    1,
		},

		// ApplyOps response
		{
			MsgType: common.MsgTApplyOps,
			Applied: 2,
			Results: []bool{true, true},
		},

		// FindAll response with multiple documents
		{
			MsgType: common.MsgTFindAll,
			Values:  [][]byte{[]byte(`{"_id":0}`), []byte(`{"_id":1}`)},
		},

		// ListIdents response
		{
			MsgType: common.MsgTListIdents,
			Names:   []string{"unittests.a", "unittests.b"},
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// Message with most fields filled
		{
			MsgType: common.MsgTDropCollection,
			NS:      "unittests.coll",
			Ts:      42,
			Term:    3,
			UUID:    "7f0f5bc6-43f1-4f3a-8f7b-7e6b1c3f9f55",
			Ok:      true,
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()

			for i, original := range messages {
				data, err := s.Serialize(original)
				if err != nil {
					t.Fatalf("Message %d: Serialize failed: %v", i, err)
				}

				var decoded common.Message
				if err := s.Deserialize(data, &decoded); err != nil {
					t.Fatalf("Message %d: Deserialize failed: %v", i, err)
				}

				if !reflect.DeepEqual(original, decoded) {
					t.Errorf("Message %d: round trip mismatch:\noriginal: %+v\ndecoded:  %+v", i, original, decoded)
				}
			}
		})
	}
}

// TestDeserializeGarbage tests that invalid input produces an error
func TestDeserializeGarbage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()
			var msg common.Message
			if err := s.Deserialize([]byte("not a message"), &msg); err == nil {
				t.Errorf("Expected an error for garbage input")
			}
		})
	}
}

// TestMessageTypeStrings tests the wire names of the message types
func TestMessageTypeStrings(t *testing.T) {
	types := []common.MessageType{
		common.MsgTApplyOps, common.MsgTDoTxn, common.MsgTInsert,
		common.MsgTUpsert, common.MsgTDelete, common.MsgTFind,
		common.MsgTFindAll, common.MsgTCount, common.MsgTCreateCollection,
		common.MsgTDropCollection, common.MsgTDropDatabase, common.MsgTListIdents,
		common.MsgTEngineInfo, common.MsgTError, common.MsgTSuccess,
	}
	seen := map[string]bool{}
	for _, mt := range types {
		s := mt.String()
		if s == "unknown" {
			t.Errorf("Message type %d has no wire name", mt)
		}
		if seen[s] {
			t.Errorf("Duplicate wire name %q", s)
		}
		seen[s] = true
	}
}
