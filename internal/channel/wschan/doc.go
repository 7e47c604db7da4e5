// Package wschan binds channel.Channel to websockets. The controller side is an
// http.Handler accepting peer connections; peers Dial it. Frames are JSON text
// messages produced by channel.EncodeFrame.
package wschan
