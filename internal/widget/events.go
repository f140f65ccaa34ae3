package widget

import (
	"supportwidget/entity"
	"supportwidget/internal/ws"
)

// Internal event union for the app loop. User intents, network completions,
// realtime frames and presence timer fires all arrive through one channel
// and are processed in order; this is the widget's single logical thread.
type event any

type (
	evOpen   struct{}
	evClose  struct{} // close action: any view back to the button
	evSelect struct{ categoryID string }
	evBack   struct{}
	evTalk   struct{}
	evRetry  struct{}

	evSend struct{ content string }
	evAttach struct {
		filename string
		data     []byte
	}
	evEndChat struct{} // visitor asks the backend to close the thread

	evCategoriesSettled struct{}

	// start sequence completion; gen guards against results of an
	// abandoned session arriving after the visitor moved on
	evStartResult struct {
		gen      uint64
		category entity.Category
		resp     *entity.ChatStartResponse
		history  []entity.Message
		err      error
	}

	evConnected struct {
		gen     uint64
		adapter *ws.Adapter
		err     error
	}

	evRealtime struct {
		gen   uint64
		event ws.Event
	}

	evSent struct{ gen uint64 } // message post acknowledged

	evUploadResult struct {
		gen           uint64
		placeholderID string
		filename      string
		resp          *entity.UploadResponse
		err           error
	}

	evPresence struct {
		threadID string
		kind     presenceKind
	}
)
