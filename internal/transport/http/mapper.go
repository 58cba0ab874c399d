package http

import (
	"encoding/json"

	"github.com/codehive/collab-server/internal/core"
	"github.com/codehive/collab-server/internal/proto"
)

// inboundToCommand maps a wire message to a core command. A non-nil
// proto.Error means the message was malformed; it is answered to the
// sender only and never tears down the connection.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoinProject:
		var join proto.JoinProjectData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, badRequest("invalid join-project payload")
		}
		if join.ProjectID == "" {
			return nil, badRequest("projectId is required")
		}
		return &core.Command{
			Kind:    core.CommandJoinProject,
			Project: join.ProjectID,
		}, nil

	case proto.InboundTypeLeaveProject:
		var leave proto.JoinProjectData
		if err := json.Unmarshal(inbound.Data, &leave); err != nil {
			return nil, badRequest("invalid leave-project payload")
		}
		return &core.Command{
			Kind:    core.CommandLeaveProject,
			Project: leave.ProjectID,
		}, nil

	case proto.InboundTypeCodeChange:
		var change proto.CodeChangeData
		if err := json.Unmarshal(inbound.Data, &change); err != nil {
			return nil, badRequest("invalid code-change payload")
		}
		if change.ProjectID == "" {
			return nil, badRequest("projectId is required")
		}
		if change.FilePath == "" {
			return nil, badRequest("filePath is required")
		}
		return &core.Command{
			Kind:    core.CommandCodeChange,
			Project: change.ProjectID,
			Code: &core.CodeChange{
				FilePath:   change.FilePath,
				NewContent: change.NewContent,
				Cursor:     positionFromProto(change.CursorPosition),
			},
		}, nil

	case proto.InboundTypeCursorChange:
		var change proto.CursorChangeData
		if err := json.Unmarshal(inbound.Data, &change); err != nil {
			return nil, badRequest("invalid cursor-change payload")
		}
		if change.ProjectID == "" {
			return nil, badRequest("projectId is required")
		}
		if change.FilePath == "" {
			return nil, badRequest("filePath is required")
		}
		if change.CursorPosition == nil {
			return nil, badRequest("cursorPosition is required")
		}
		return &core.Command{
			Kind:    core.CommandCursorChange,
			Project: change.ProjectID,
			Cursor: &core.CursorChange{
				FilePath:  change.FilePath,
				Cursor:    core.Position{Line: change.CursorPosition.Line, Column: change.CursorPosition.Column},
				Selection: selectionFromProto(change.Selection),
			},
		}, nil

	default:
		return nil, &proto.Error{Code: "invalid_message", Message: "unknown message type"}
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventJoinedProject:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventJoinedProject,
			Data: proto.JoinedProjectEvent{
				ProjectID:  event.Project,
				TotalUsers: event.TotalUsers,
			},
		}
	case core.EventUserJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserJoined,
			Data: proto.UserJoinedEvent{
				User:       event.User,
				TotalUsers: event.TotalUsers,
			},
		}
	case core.EventUserLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserLeft,
			Data: proto.UserLeftEvent{
				User:       event.User,
				TotalUsers: event.TotalUsers,
			},
		}
	case core.EventCodeUpdate:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventCodeUpdate,
			Data: proto.CodeUpdateEvent{
				FilePath:       event.Code.FilePath,
				NewContent:     event.Code.NewContent,
				CursorPosition: positionToProto(event.Code.Cursor),
				UserID:         event.User,
				Timestamp:      event.At.UnixMilli(),
			},
		}
	case core.EventCursorUpdate:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventCursorUpdate,
			Data: proto.CursorUpdateEvent{
				FilePath:       event.Cursor.FilePath,
				CursorPosition: proto.Position{Line: event.Cursor.Cursor.Line, Column: event.Cursor.Cursor.Column},
				Selection:      selectionToProto(event.Cursor.Selection),
				UserID:         event.User,
				Timestamp:      event.At.UnixMilli(),
			},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Message: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Message: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Message: msg}
}

func positionFromProto(p *proto.Position) *core.Position {
	if p == nil {
		return nil
	}
	return &core.Position{Line: p.Line, Column: p.Column}
}

func positionToProto(p *core.Position) *proto.Position {
	if p == nil {
		return nil
	}
	return &proto.Position{Line: p.Line, Column: p.Column}
}

func selectionFromProto(s *proto.Selection) *core.Selection {
	if s == nil {
		return nil
	}
	return &core.Selection{
		Start: core.Position{Line: s.Start.Line, Column: s.Start.Column},
		End:   core.Position{Line: s.End.Line, Column: s.End.Column},
	}
}

func selectionToProto(s *core.Selection) *proto.Selection {
	if s == nil {
		return nil
	}
	return &proto.Selection{
		Start: proto.Position{Line: s.Start.Line, Column: s.Start.Column},
		End:   proto.Position{Line: s.End.Line, Column: s.End.Column},
	}
}
