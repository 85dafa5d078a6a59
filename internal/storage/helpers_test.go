package storage

import logx "doorbot/pkg/logx"

func nopLog() logx.Logger { return logx.Nop() }
