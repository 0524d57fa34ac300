// Package protocol defines the logical message protocol spoken between the
// popup controller, the background collaborator and the frames of a tab.
//
// Outbound messages are plain structs encoded as {"event": name, ...}.
// Inbound messages arrive as an Envelope (raw JSON plus the sender attached by
// the transport) and are decoded into one of the Inbound variants.
package protocol

// Outbound events sent to frames of a tab.
const (
	EventExecute                   = "execute"
	EventRequestShowResultsInPopup = "requestShowResultsInPopup"
	EventRequestShowAllResults     = "requestShowAllResults"
	EventFocusFrame                = "focusFrame"
	EventFocusItem                 = "focusItem"
	EventFocusContextItem          = "focusContextItem"
	EventSetStyle                  = "setStyle"
	EventResetStyle                = "resetStyle"
	EventInitializeBlankWindows    = "initializeBlankWindows"
)

// Outbound events sent to the background collaborator.
const (
	EventStorePopupState           = "storePopupState"
	EventRequestRestorePopupState  = "requestRestorePopupState"
	EventRequestInsertStyleToPopup = "requestInsertStyleToPopup"
)

// Inbound events handled by the popup controller.
const (
	EventShowResultsInPopup = "showResultsInPopup"
	EventRestorePopupState  = "restorePopupState"
	EventInsertStyleToPopup = "insertStyleToPopup"
	// EventAddFrameID is both the discovery fan-out and each frame's reply.
	EventAddFrameID = "addFrameId"
)
