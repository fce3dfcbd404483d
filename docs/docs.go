// Package docs registers the OpenAPI description served under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Service health and connectivity",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/connectivity": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Report a connectivity observation",
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "403": {"description": "Forbidden"}}
            }
        },
        "/events": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "List events ordered by date",
                "parameters": [
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Create an event",
                "responses": {"201": {"description": "Created"}, "202": {"description": "Queued while offline"}, "400": {"description": "Bad Request"}}
            }
        },
        "/events/stream": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["text/event-stream"],
                "tags": ["events"],
                "summary": "Stream the live event list",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/events/{eventID}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Get an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Update an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Delete an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}}
            }
        },
        "/events/{eventID}/rsvp": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["attendance"],
                "summary": "RSVP to an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "202": {"description": "Queued while offline"}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["attendance"],
                "summary": "Withdraw an RSVP",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "409": {"description": "Already checked in"}}
            }
        },
        "/events/{eventID}/token": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["attendance"],
                "summary": "Issue the caller's check-in token",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Not RSVP'd"}}
            }
        },
        "/events/{eventID}/attendance": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Attendance counts for an event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}
            }
        },
        "/events/{eventID}/notify": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Notify an event's attendees",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "429": {"description": "Quota exceeded"}}
            }
        },
        "/checkins": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["attendance"],
                "summary": "Validate a scanned token and check the attendee in",
                "responses": {"200": {"description": "OK"}, "202": {"description": "Queued while offline"}, "403": {"description": "Forbidden"}, "429": {"description": "Too Many Requests"}}
            }
        },
        "/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Get the caller's profile",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["users"],
                "summary": "Register the caller's profile",
                "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}}
            }
        },
        "/me/events": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["attendance"],
                "summary": "Events the caller has RSVP'd to",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Campus Attendance API",
	Description:      "Event RSVPs, QR check-in tokens and live attendance.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
