package client

import (
	"sort"

	chatmodel "github.com/threadswap/chat-service/module/chat/model"
)

// mergeMessages folds one fetched page into the local ordered state. Message
// id is the dedup key: a known id is replaced in place (picking up read_by
// growth), a new id is inserted in (seq, id) order. Purely synchronous - no
// I/O happens here. The input slices are not mutated; the result may share
// message pointers with both.
func mergeMessages(local, incoming []*chatmodel.Message) []*chatmodel.Message {
	if len(incoming) == 0 {
		return local
	}

	byID := make(map[string]int, len(local))
	for i, m := range local {
		byID[m.ID] = i
	}

	out := append([]*chatmodel.Message(nil), local...)
	appended := false
	for _, m := range incoming {
		if i, ok := byID[m.ID]; ok {
			out[i] = m
			continue
		}
		byID[m.ID] = len(out)
		out = append(out, m)
		appended = true
	}

	if appended {
		sort.Slice(out, func(i, j int) bool {
			if out[i].Seq != out[j].Seq {
				return out[i].Seq < out[j].Seq
			}
			return out[i].ID < out[j].ID
		})
	}
	return out
}

// newestMessage returns the highest-seq message, or nil for an empty list.
// The merged list is ascending, so this is the tail.
func newestMessage(msgs []*chatmodel.Message) *chatmodel.Message {
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}
