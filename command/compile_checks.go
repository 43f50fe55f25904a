package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[DeliverRecordMessage] = (*DeliverRecordCommand)(nil)
	_ gocmd.Commander[ReplayRecordMessage]  = (*ReplayRecordCommand)(nil)
	_ gocmd.Commander[PruneRecordsMessage]  = (*PruneRecordsCommand)(nil)
)
