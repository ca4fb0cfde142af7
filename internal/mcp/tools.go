package mcp

import "github.com/mark3labs/mcp-go/mcp"

var scanToolDef = mcp.NewTool("scan",
	mcp.WithDescription("Scan the handshakes directory and return access points keyed by position file name. "+
		"With incremental=true only position files not yet returned in this session are included."),
	mcp.WithBoolean("incremental",
		mcp.Description("Return only records not delivered since the last reset"),
	),
)

var resetToolDef = mcp.NewTool("reset",
	mcp.WithDescription("Forget which position files were delivered so the next incremental scan returns everything again."),
	mcp.WithBoolean("clear_skipped",
		mcp.Description("Also forget files that were skipped as unusable"),
	),
)

var loadCredentialsToolDef = mcp.NewTool("load_credentials",
	mcp.WithDescription("Reload the potfiles in the handshakes directory and return the number of credentials per source."),
)

var skippedToolDef = mcp.NewTool("skipped",
	mcp.WithDescription("List position files this session could not use, with the error code and message for each."),
)

var reportToolDef = mcp.NewTool("report",
	mcp.WithDescription("Run a full scan and return a markdown summary: counts, position sources, cracked access points per source and skipped files."),
)

var statsToolDef = mcp.NewTool("stats",
	mcp.WithDescription("Return the parsed record cache counters and the number of loaded credentials."),
)
