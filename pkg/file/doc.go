// Package file reads media blobs referenced by message definitions.
//
// Two backends implement Storage: S3Storage (Amazon S3 or any S3-compatible
// service through aws-sdk-go-v2) and LocalStorage (a directory on disk). New
// picks one from Config.Backend:
//
//	var cfg file.Config
//	config.MustLoad(&cfg)
//
//	media, err := file.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	blob, err := media.Fetch(ctx, "owners/7/promo.mp4")
//
// Fetch reads the whole object into memory and rejects anything above
// MEDIA_MAX_BYTES with ErrFileTooLarge. The content type comes from the object
// metadata, then from the key's extension, then from sniffing the bytes.
//
// Missing objects yield ErrFileNotFound; S3 API failures are classified into the
// package's sentinel errors so callers can use errors.Is.
package file
