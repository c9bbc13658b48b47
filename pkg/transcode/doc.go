// Package transcode turns arbitrary audio into WhatsApp voice notes
// (Opus in Ogg, 16 kbit/s by default) by running ffmpeg
// through the ffmpeg-go command builder.
//
// Input and output go through a private temporary directory so containers
// that need seeking, such as m4a, are handled. Failures wrap ErrTranscode
// and carry the tail of ffmpeg's stderr.
package transcode
